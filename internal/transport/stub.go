//go:build !iouring

package transport

import (
	"context"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-coop/internal/logging"
)

// stubRing is the default Ring: real syscalls (golang.org/x/sys/unix) for
// openat/read/close, a timer goroutine for timeout, and an immediate
// self-completion for noop — fed back through a single completion channel.
// It needs no kernel io_uring support, at the cost of one goroutine per
// outstanding blocking syscall rather than a true submission/completion
// ring. Built whenever the iouring tag is absent; internal/transport/
// iouring_linux.go supplies a real ring behind that tag.
type stubRing struct {
	completions chan Completion
	closed      atomic.Bool
	done        chan struct{}
	log         *logging.Logger
}

// NewRing builds the default Ring. Built whenever the iouring tag is
// absent; iouring_linux.go supplies a real io_uring-backed Ring otherwise.
func NewRing(cfg Config) (Ring, error) {
	logging.Default().Debug("creating transport ring", "backend", "stub", "entries", cfg.entriesOrDefault())
	return newStubRing(cfg)
}

func newStubRing(cfg Config) (Ring, error) {
	return &stubRing{
		completions: make(chan Completion, cfg.entriesOrDefault()),
		done:        make(chan struct{}),
		log:         logging.Default().With("transport", "stub"),
	}, nil
}

func (r *stubRing) Submit(sub Submission) error {
	if r.closed.Load() {
		return ErrRingFull
	}
	switch sub.Op {
	case OpNoop:
		r.complete(sub.ID, 0)
	case OpTimeout:
		r.submitTimeout(sub)
	case OpOpenat:
		go r.submitOpenat(sub)
	case OpRead:
		go r.submitRead(sub)
	case OpClose:
		go r.submitClose(sub)
	default:
		r.complete(sub.ID, resultOf(syscall.EINVAL))
	}
	return nil
}

func (r *stubRing) submitTimeout(sub Submission) {
	d := time.Duration(sub.TimeoutMS) * time.Millisecond
	id := sub.ID
	time.AfterFunc(d, func() {
		// A timeout that runs to completion without being raced by a
		// cancellation always reports ETIME, matching the kernel
		// io_uring convention coop.rs's tests pin down.
		r.complete(id, resultOf(syscall.ETIME))
	})
}

func (r *stubRing) submitOpenat(sub Submission) {
	fd, err := unix.Openat(unix.AT_FDCWD, sub.Path, sub.OpenFlags, sub.Mode)
	if err != nil {
		r.complete(sub.ID, resultOf(errnoOf(err)))
		return
	}
	r.complete(sub.ID, int64(fd))
}

func (r *stubRing) submitRead(sub Submission) {
	n, err := unix.Pread(sub.FD, sub.Buf, sub.Offset)
	if err != nil {
		r.complete(sub.ID, resultOf(errnoOf(err)))
		return
	}
	r.complete(sub.ID, int64(n))
}

func (r *stubRing) submitClose(sub Submission) {
	if err := unix.Close(sub.CloseFD); err != nil {
		r.complete(sub.ID, resultOf(errnoOf(err)))
		return
	}
	r.complete(sub.ID, 0)
}

func (r *stubRing) complete(id Uint64, result int64) {
	select {
	case r.completions <- Completion{ID: id, Result: result}:
	case <-r.done:
	}
}

func (r *stubRing) Wait(ctx context.Context) ([]Completion, error) {
	select {
	case c := <-r.completions:
		out := []Completion{c}
		// Drain whatever else is already ready without blocking, the
		// way a real ring returns a batch of completions per enter.
		for {
			select {
			case more := <-r.completions:
				out = append(out, more)
				continue
			default:
			}
			break
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, syscall.EBADF
	}
}

func (r *stubRing) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		close(r.done)
	}
	return nil
}

func errnoOf(err error) syscall.Errno {
	if errno, ok := err.(syscall.Errno); ok {
		return errno
	}
	return syscall.EIO
}

func resultOf(errno syscall.Errno) int64 {
	if errno == 0 {
		return 0
	}
	return -int64(errno)
}

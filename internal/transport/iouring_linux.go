//go:build iouring

package transport

import (
	"context"
	"sync"
	"syscall"
	"unsafe"

	"github.com/pawelgaczynski/giouring"

	"github.com/ehrlich-b/go-coop/internal/logging"
)

// iouringRing is the real transport: a single io_uring instance shared by
// every outstanding submission. This is the teacher's own declared
// dependency (github.com/pawelgaczynski/giouring), which the teacher's tree
// requires but never actually imports — its build-tagged internal/uring/
// iouring.go reaches for a different, unlisted binding instead. This file
// wires giouring for real, against its originally intended purpose.
type iouringRing struct {
	mu      sync.Mutex
	ring    *giouring.Ring
	pending map[Uint64]pendingOp
	bufs    *bufPool
	log     *logging.Logger
}

// pendingOp tracks a submission between Submit and its completion. readBuf
// is only set for OpRead: the kernel writes into a pool-owned buffer, kept
// alive here by this reference for as long as the SQE references it, rather
// than the caller's destination slice directly, so Wait must copy readBuf
// back into sub.Buf once the read completes.
type pendingOp struct {
	sub     Submission
	readBuf []byte
}

// NewRing builds the real io_uring-backed Ring. Built only with -tags
// iouring; stub.go supplies the default transport otherwise.
func NewRing(cfg Config) (Ring, error) {
	logging.Default().Debug("creating transport ring", "backend", "iouring", "entries", cfg.entriesOrDefault())
	return newIouringRing(cfg)
}

func newIouringRing(cfg Config) (Ring, error) {
	ring, err := giouring.CreateRing(cfg.entriesOrDefault())
	if err != nil {
		return nil, err
	}
	return &iouringRing{
		ring:    ring,
		pending: make(map[Uint64]pendingOp),
		bufs:    newBufPool(),
		log:     logging.Default().With("transport", "iouring"),
	}, nil
}

func (r *iouringRing) Submit(sub Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sqe := r.ring.GetSQE()
	if sqe == nil {
		if _, err := r.ring.Submit(); err != nil {
			return err
		}
		sqe = r.ring.GetSQE()
		if sqe == nil {
			return ErrRingFull
		}
	}

	op := pendingOp{sub: sub}
	switch sub.Op {
	case OpNoop:
		sqe.PrepareNop()
	case OpTimeout:
		ts := syscall.NsecToTimespec(int64(sub.TimeoutMS) * int64(1e6))
		sqe.PrepareTimeout(&ts, 0, 0)
	case OpOpenat:
		sqe.PrepareOpenat(int(giouring.AtFDCWD), sub.Path, uint32(sub.OpenFlags), sub.Mode)
	case OpRead:
		op.readBuf = r.bufs.get(len(sub.Buf))
		sqe.PrepareRead(sub.FD, uintptr(unsafe.Pointer(&op.readBuf[0])), uint32(len(sub.Buf)), uint64(sub.Offset))
	case OpClose:
		sqe.PrepareClose(sub.CloseFD)
	default:
		return errInvalidOp
	}
	sqe.UserData = sub.ID
	r.pending[sub.ID] = op
	_, err := r.ring.SubmitAndWait(0)
	return err
}

func (r *iouringRing) Wait(ctx context.Context) ([]Completion, error) {
	if _, err := r.ring.WaitCQEs(1, nil, nil); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var cqes [64]*giouring.CompletionQueueEvent
	n := r.ring.PeekBatchCQE(cqes[:])
	out := make([]Completion, 0, n)
	for i := uint32(0); i < n; i++ {
		cqe := cqes[i]
		op, ok := r.pending[cqe.UserData]
		if ok {
			delete(r.pending, cqe.UserData)
			if op.sub.Op == OpRead && op.readBuf != nil {
				if cqe.Res > 0 {
					copy(op.sub.Buf, op.readBuf[:cqe.Res])
				}
				r.bufs.put(op.readBuf)
			}
		}
		out = append(out, Completion{ID: cqe.UserData, Result: int64(cqe.Res)})
	}
	r.ring.CQAdvance(n)
	return out, nil
}

func (r *iouringRing) Close() error {
	r.ring.QueueExit()
	return nil
}

var errInvalidOp = syscall.EINVAL

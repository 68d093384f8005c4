package coop

import (
	"container/list"
	"context"
	"syscall"

	"github.com/ehrlich-b/go-coop/internal/logging"
	"github.com/ehrlich-b/go-coop/internal/transport"
)

// Scheduler is the single-threaded cooperative core described in spec.md
// §4.1: a FIFO run queue, a map of submissions awaiting a transport
// completion, a count of live tasks, and the main loop that drives them.
// There is no separate task table: a live task is reachable only through
// the run queue, the pending map or a channel waiter list. Nothing here
// is safe for concurrent use from more than one goroutine at a time — that
// invariant is exactly what "single-threaded cooperative" means, and it is
// preserved by construction: only the task currently holding the baton
// (see task.go) ever touches scheduler or channel state.
type Scheduler struct {
	log *logging.Logger

	ring transport.Ring

	nextTaskID int64
	nextSubID  uint64
	nextChanID int64

	capacity int // submission_capacity: max len(pending) at once (spec.md §3)

	runQueue *list.List // of *Task
	pending  map[uint64]*Task
	channels map[*Channel]struct{}

	live int
}

// New creates a Scheduler. By default it owns a transport.Ring built with
// transport.NewRing(transport.Config{}); use WithTransport to supply a
// different one (a fake, for tests, or a real io_uring ring built with
// -tags iouring). Use WithCapacity to bound submission_capacity (spec.md
// §3); each of Noop/Timeout/Openat/Read/CloseFD fails fast with EINVAL
// once that many submissions are already in flight.
func New(opts ...Option) (*Scheduler, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	ring := cfg.ring
	if ring == nil {
		r, err := transport.NewRing(transport.Config{Entries: cfg.ringEntries})
		if err != nil {
			return nil, WrapError("new", err)
		}
		ring = r
	}

	return &Scheduler{
		log:      cfg.logger,
		ring:     ring,
		capacity: cfg.capacity,
		runQueue: list.New(),
		pending:  make(map[uint64]*Task),
		channels: make(map[*Channel]struct{}),
	}, nil
}

// atCapacity reports whether the scheduler already has submission_capacity
// submissions in flight (spec.md §3/§4.1, §7's "Submission capacity
// exceeded" InvalidArgument case).
func (s *Scheduler) atCapacity() bool {
	return len(s.pending) >= s.capacity
}

// Close releases the scheduler's transport. Safe to call after Run
// returns; not safe to call concurrently with Run.
func (s *Scheduler) Close() error {
	return s.ring.Close()
}

// Spawn creates a new task running entry(task, ctx) and appends it to the
// run queue. It implements spec.md §4.1.2: if copyCtx is false the task
// borrows ctx (the caller must keep it alive and free of concurrent
// mutation until the task observably finishes); if true, spawn takes a
// one-time shallow copy up front and the task owns that copy exclusively.
// Spawn is itself a primitive any running task may call — including from
// inside its own entry function, to spawn further tasks (spec.md §10).
func Spawn[T any](s *Scheduler, entry func(*Task, *T) int64, ctx *T, copyCtx bool) int64 {
	if s == nil || entry == nil {
		return EINVAL
	}

	owned := ctx
	if copyCtx && ctx != nil {
		cp := *ctx
		owned = &cp
	}

	s.nextTaskID++
	id := s.nextTaskID
	t := newTask(s, id, nil)
	t.run = func() int64 { return entry(t, owned) }

	s.live++
	s.log.Debug("task spawned", "task_id", id, "copy_ctx", copyCtx)
	s.enqueueRunnable(t)
	return 0
}

func (s *Scheduler) enqueueRunnable(t *Task) {
	s.runQueue.PushBack(t)
}

func (s *Scheduler) nextSubmissionID() uint64 {
	s.nextSubID++
	return s.nextSubID
}

func (s *Scheduler) registerChannel(c *Channel) { s.channels[c] = struct{}{} }

func (s *Scheduler) nextChannelID() int64 {
	s.nextChanID++
	return s.nextChanID
}

// Run drives the scheduler to completion: it repeatedly drains the run
// queue (running each runnable task until it parks or finishes) and, once
// the run queue is empty but submissions remain outstanding, blocks on the
// transport for the next batch of completions. Per spec.md §4.1.1 step 3,
// if the run queue and the pending map are ever both empty while tasks
// remain live, every one of those tasks must be parked on a channel (the
// only other place a live task can be); Run surfaces that by waking every
// channel-parked task with EDEADLK and letting the loop continue, only
// returning EDEADLK itself if that drain wakes nobody (a genuine stuck
// task with nowhere live to resume from).
func (s *Scheduler) Run() int64 {
	s.log.Debug("scheduler run starting", "live", s.live)
	for s.live > 0 {
		for s.runQueue.Len() > 0 {
			front := s.runQueue.Front()
			s.runQueue.Remove(front)
			t := front.Value.(*Task)

			if !t.started {
				t.started = true
				t.startGoroutine()
			}
			t.resumeCh <- t.resumeValue
			msg := <-t.yieldCh
			if msg.finished {
				s.live--
			}
		}
		if s.live == 0 {
			break
		}

		if len(s.pending) > 0 {
			completions, err := s.ring.Wait(context.Background())
			if err != nil {
				return resultFromErr(err)
			}
			for _, c := range completions {
				if t, ok := s.pending[c.ID]; ok {
					delete(s.pending, c.ID)
					t.wake(c.Result)
				}
			}
			continue
		}

		if woken := s.drainAllChannels(); woken == 0 {
			s.log.Error("deadlock: no runnable tasks, nothing pending, no waiter woken")
			return EDEADLK
		}
	}
	s.log.Debug("scheduler run finished")
	return 0
}

func (s *Scheduler) drainAllChannels() int {
	woken := 0
	for c := range s.channels {
		woken += c.drainDeadlock()
	}
	if woken > 0 {
		s.log.Warn("deadlock sweep woke parked tasks", "woken", woken)
	}
	return woken
}

func resultFromErr(err error) int64 {
	if errno, ok := err.(syscall.Errno); ok {
		return -int64(errno)
	}
	return -int64(syscall.EIO)
}

// Noop submits a no-op completion. Used to force a round trip through the
// transport (e.g. to let other already-runnable tasks run before the
// calling task continues) and as the simplest possible exercise of the
// suspend/resume contract.
func (s *Scheduler) Noop(t *Task) int64 {
	if s.atCapacity() {
		return EINVAL
	}
	id := s.nextSubmissionID()
	if err := s.ring.Submit(transport.Submission{ID: id, Op: transport.OpNoop}); err != nil {
		return resultFromErr(err)
	}
	s.pending[id] = t
	return t.park("noop")
}

// Timeout parks the calling task for at least ms milliseconds, resuming
// with -ETIME (the kernel io_uring convention for a timeout that expires
// without being raced by a cancellation).
func (s *Scheduler) Timeout(t *Task, ms uint32) int64 {
	if s.atCapacity() {
		return EINVAL
	}
	id := s.nextSubmissionID()
	if err := s.ring.Submit(transport.Submission{ID: id, Op: transport.OpTimeout, TimeoutMS: ms}); err != nil {
		return resultFromErr(err)
	}
	s.pending[id] = t
	return t.park("timeout")
}

// Openat opens path relative to the current working directory, resuming
// with the new file descriptor (or a negative errno).
func (s *Scheduler) Openat(t *Task, path string, flags int, mode uint32) int64 {
	if s.atCapacity() {
		return EINVAL
	}
	id := s.nextSubmissionID()
	if err := s.ring.Submit(transport.Submission{ID: id, Op: transport.OpOpenat, Path: path, OpenFlags: flags, Mode: mode}); err != nil {
		return resultFromErr(err)
	}
	s.pending[id] = t
	return t.park("openat")
}

// Read reads into buf from fd at offset, resuming with the number of
// bytes read (or a negative errno).
func (s *Scheduler) Read(t *Task, fd int, buf []byte, offset int64) int64 {
	if s.atCapacity() {
		return EINVAL
	}
	id := s.nextSubmissionID()
	if err := s.ring.Submit(transport.Submission{ID: id, Op: transport.OpRead, FD: fd, Buf: buf, Offset: offset}); err != nil {
		return resultFromErr(err)
	}
	s.pending[id] = t
	return t.park("read")
}

// CloseFD closes fd, resuming with 0 or a negative errno.
func (s *Scheduler) CloseFD(t *Task, fd int) int64 {
	if s.atCapacity() {
		return EINVAL
	}
	id := s.nextSubmissionID()
	if err := s.ring.Submit(transport.Submission{ID: id, Op: transport.OpClose, CloseFD: fd}); err != nil {
		return resultFromErr(err)
	}
	s.pending[id] = t
	return t.park("close")
}

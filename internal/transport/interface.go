// Package transport provides the asynchronous I/O transport the scheduler
// drives: a submission/completion ring plus the handful of operations
// (no-op, timeout, open, read, close) spec.md §4.1 names as out of scope for
// the scheduler itself but required for it to have something to submit to.
package transport

import (
	"context"
	"errors"
)

// ErrRingFull is returned when the submission queue has no room for another
// outstanding operation. The stub transport also returns it from Submit once
// the ring has been closed.
var ErrRingFull = errors.New("submission queue full")

// Op identifies the kind of operation a Submission describes.
type Op uint8

const (
	OpNoop Op = iota
	OpTimeout
	OpOpenat
	OpRead
	OpClose
)

func (o Op) String() string {
	switch o {
	case OpNoop:
		return "noop"
	case OpTimeout:
		return "timeout"
	case OpOpenat:
		return "openat"
	case OpRead:
		return "read"
	case OpClose:
		return "close"
	default:
		return "unknown"
	}
}

// Submission describes one outstanding operation. ID is the caller-chosen
// user-data tag the transport echoes back unmodified in the matching
// Completion; the scheduler uses it to look the originating task back up.
type Submission struct {
	ID Uint64

	Op Op

	// Timeout: relative deadline in milliseconds.
	TimeoutMS uint32

	// Openat: path and flags, POSIX semantics.
	Path      string
	OpenFlags int
	Mode      uint32

	// Read: target fd, destination buffer and absolute offset.
	FD     int
	Buf    []byte
	Offset int64

	// Close: target fd.
	CloseFD int
}

// Uint64 is a user-data tag. It is a type alias, so it documents which
// values are submission ids but is fully interchangeable with uint64.
type Uint64 = uint64

// Completion is one entry the transport hands back to Wait. Result follows
// the signed errno convention of spec.md §6: 0 or positive is success,
// negative is -errno.
type Completion struct {
	ID     Uint64
	Result int64
}

// Ring is the interface the scheduler depends on. It never imports a
// concrete transport package directly.
type Ring interface {
	// Submit enqueues op. It may be called only from the task goroutine
	// that currently holds the scheduler's baton.
	Submit(sub Submission) error

	// Wait blocks until at least one submission completes, or ctx is
	// done. It is called only when the run queue is empty and at least
	// one submission is outstanding.
	Wait(ctx context.Context) ([]Completion, error)

	// Close releases the transport's resources. Submissions still
	// outstanding are not guaranteed to complete afterward.
	Close() error
}

// Config configures a Ring.
type Config struct {
	// Entries bounds how many submissions may be outstanding at once.
	// 0 selects a sensible default.
	Entries uint32
}

func (c Config) entriesOrDefault() uint32 {
	if c.Entries == 0 {
		return 256
	}
	return c.Entries
}

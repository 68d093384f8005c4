package coop

import (
	"container/list"
	"unsafe"
)

// Channel is a rendezvous channel per spec.md §4.2: unbuffered in the
// sense that a value only ever moves directly from a Send to a matching
// Recv or Select, but backed by three FIFO waiter lists so that senders,
// receivers and selectors that arrive before a match exists can park until
// one does. Values are handed off as unsafe.Pointer rather than copied
// through a native Go chan, preserving the spec's zero-copy, sender-
// retains-ownership handoff semantics — a native chan would copy the value
// and trivialize away the exact mechanic this type exists to implement.
type Channel struct {
	id        int64
	sched     *Scheduler
	capacity  int
	ownerRefs int

	sendersWaiting   *list.List // of *senderWaiter
	receiversWaiting *list.List // of *receiverWaiter
	selectorsWaiting *list.List // of *selection
}

type senderWaiter struct {
	task  *Task
	value unsafe.Pointer
}

type receiverWaiter struct {
	task *Task
	out  *unsafe.Pointer
}

// NewChannel creates a channel with the given capacity, per spec.md §3:
// capacity bounds len(sendersWaiting)+len(receiversWaiting), the number of
// same-direction waiters that may be parked at once before an operation
// instead fails fast with EDEADLK. The new channel starts with a single
// owner reference (see Free).
func NewChannel(s *Scheduler, capacity int) (*Channel, error) {
	if s == nil {
		return nil, NewError("channel_init", KindInvalidArg, "nil scheduler")
	}
	if capacity < 1 {
		return nil, NewError("channel_init", KindInvalidArg, "capacity must be >= 1")
	}
	c := &Channel{
		id:               s.nextChannelID(),
		sched:            s,
		capacity:         capacity,
		ownerRefs:        1,
		sendersWaiting:   list.New(),
		receiversWaiting: list.New(),
		selectorsWaiting: list.New(),
	}
	s.registerChannel(c)
	s.log.Debug("channel created", "channel_id", c.id, "capacity", capacity)
	return c, nil
}

// ID returns the channel's scheduler-assigned identifier.
func (c *Channel) ID() int64 { return c.id }

// Send implements spec.md §4.2.1. A waiting selector is preferred over a
// waiting plain receiver (both represent receive-side intent, but a
// selector may be the only way a deadlocked set of tasks can ever make
// progress, so it is given first refusal); absent either, Send falls back
// to insert mode, parking the caller as a new sender unless doing so would
// push the channel over capacity, in which case it fails fast with
// EDEADLK rather than parking forever.
func (c *Channel) Send(t *Task, value unsafe.Pointer) int64 {
	if c == nil {
		return EINVAL
	}

	if elem := c.selectorsWaiting.Front(); elem != nil {
		sel := elem.Value.(*selection)
		c.selectorsWaiting.Remove(elem)
		idx := sel.indexOf(c)
		sel.unlinkRemaining()
		sel.fired = true
		*sel.out = value
		sel.task.wake(int64(idx))
		return 0
	}

	if elem := c.receiversWaiting.Front(); elem != nil {
		rw := elem.Value.(*receiverWaiter)
		c.receiversWaiting.Remove(elem)
		*rw.out = value
		rw.task.wake(0)
		return 0
	}

	if c.sendersWaiting.Len()+1 >= c.capacity {
		return EDEADLK
	}
	c.sendersWaiting.PushBack(&senderWaiter{task: t, value: value})
	return t.park("chan:send")
}

// Recv implements the mirror image of Send: a waiting sender pairs
// immediately (direct mode), otherwise Recv parks as a new receiver unless
// that would overflow capacity. Recv never consults the selector list to
// find a pairing — selectors and plain receivers are both receive-side
// constructs, and only a Send ever has to choose between them — but it
// does count selectorsWaiting against the same capacity bound Select
// itself uses (see Select's own fullness check), since both lists hold
// receive-direction waiters sharing one capacity-1 ceiling.
func (c *Channel) Recv(t *Task, out *unsafe.Pointer) int64 {
	if c == nil {
		return EINVAL
	}

	if elem := c.sendersWaiting.Front(); elem != nil {
		sw := elem.Value.(*senderWaiter)
		c.sendersWaiting.Remove(elem)
		*out = sw.value
		sw.task.wake(0)
		return 0
	}

	if c.receiversWaiting.Len()+c.selectorsWaiting.Len()+1 >= c.capacity {
		return EDEADLK
	}
	c.receiversWaiting.PushBack(&receiverWaiter{task: t, out: out})
	return t.park("chan:recv")
}

// Free releases one reference to the channel. ownerRelease is a
// diagnostic hint only (spec.md §6: "only the initialiser sets this on
// its release"); every release, owner or participant, counts equally
// against ownerRefs. The *last* release — whichever call happens to bring
// ownerRefs to zero or below — sweeps every waiter currently parked on the
// channel and wakes each with EDEADLK. Critically, this sweep is a
// point-in-time drain, not a tombstone: a channel that reaches zero
// references before anyone has parked on it is simply a no-op release,
// and Send/Recv/Select continue to pair normally against it afterward.
// Go's garbage collector reclaims the Channel value itself once nothing
// references it; ownerRefs exists purely to decide when the drain should
// fire, the way the original FFI's manual allocator needed a refcount to
// know when backing storage could be reused.
func (c *Channel) Free(t *Task, ownerRelease bool) int64 {
	if c == nil {
		return EINVAL
	}
	c.ownerRefs--
	if c.ownerRefs > 0 {
		return 0
	}
	if woken := c.drainDeadlock(); woken > 0 {
		c.sched.log.Warn("channel freed with waiters parked", "channel_id", c.id, "woken", woken, "owner_release", ownerRelease)
	}
	return 0
}

// drainDeadlock wakes every task currently parked on c (as a sender,
// receiver, or selector) with EDEADLK, unlinking selectors from every
// other channel they were also linked to. It returns the number of tasks
// woken. Used both by Free's last-release sweep and by the scheduler's
// own "nothing runnable, nothing pending" deadlock surfacing.
func (c *Channel) drainDeadlock() int {
	woken := 0

	for e := c.sendersWaiting.Front(); e != nil; {
		next := e.Next()
		sw := e.Value.(*senderWaiter)
		c.sendersWaiting.Remove(e)
		sw.task.wake(EDEADLK)
		woken++
		e = next
	}

	for e := c.receiversWaiting.Front(); e != nil; {
		next := e.Next()
		rw := e.Value.(*receiverWaiter)
		c.receiversWaiting.Remove(e)
		rw.task.wake(EDEADLK)
		woken++
		e = next
	}

	for e := c.selectorsWaiting.Front(); e != nil; {
		next := e.Next()
		sel := e.Value.(*selection)
		c.selectorsWaiting.Remove(e)
		if !sel.fired {
			sel.fired = true
			sel.unlinkRemaining()
			sel.task.wake(EDEADLK)
			woken++
		}
		e = next
	}

	return woken
}

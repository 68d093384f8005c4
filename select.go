package coop

import (
	"container/list"
	"unsafe"
)

// selection is the shared state for one Select call that had to park: a
// single waiter record linked into every channel named in the caller's
// vector, so that whichever channel a sender shows up on first can both
// deliver the value and unlink the same record from every other channel
// it was linked to (spec.md §4.2.2 step 3's "explicit list surgery across
// potentially non-adjacent positions" — exactly what container/list's
// O(1) arbitrary-position Remove is for).
type selection struct {
	task     *Task
	out      *unsafe.Pointer
	channels []*Channel
	elems    []*list.Element
	fired    bool
}

// indexOf returns the one-based index of c within the selection's
// original channel vector, per spec.md §4.2.2's return convention.
func (sel *selection) indexOf(c *Channel) int {
	for i, ch := range sel.channels {
		if ch == c {
			return i + 1
		}
	}
	return 0
}

// unlinkRemaining removes sel from every channel it is still linked to.
// Safe to call after some of those links have already been removed:
// container/list.Remove is a no-op on an element no longer owned by the
// list it's asked to remove from.
func (sel *selection) unlinkRemaining() {
	for i, ch := range sel.channels {
		if ch == nil || sel.elems[i] == nil {
			continue
		}
		ch.selectorsWaiting.Remove(sel.elems[i])
	}
}

// Select implements spec.md §4.2.2: scan the vector in order for a channel
// that already has a waiting sender and pair with it immediately,
// returning that channel's one-based index; otherwise, if every channel
// in the vector is already saturated with receive-side waiters (no pair
// could ever form), fail fast with EDEADLK without linking anywhere;
// otherwise link one selection record into every channel's selector list
// and park.
func Select(t *Task, channels []*Channel, out *unsafe.Pointer) int64 {
	for i, c := range channels {
		if c == nil {
			continue
		}
		if elem := c.sendersWaiting.Front(); elem != nil {
			sw := elem.Value.(*senderWaiter)
			c.sendersWaiting.Remove(elem)
			*out = sw.value
			sw.task.wake(0)
			return int64(i + 1)
		}
	}

	full := true
	for _, c := range channels {
		if c == nil {
			continue
		}
		if c.receiversWaiting.Len()+c.selectorsWaiting.Len()+1 < c.capacity {
			full = false
			break
		}
	}
	if full {
		t.sched.log.Debug("select: every channel saturated, failing fast", "task_id", t.id)
		return EDEADLK
	}

	sel := &selection{
		task:     t,
		out:      out,
		channels: append([]*Channel(nil), channels...),
		elems:    make([]*list.Element, len(channels)),
	}
	for i, c := range sel.channels {
		if c == nil {
			continue
		}
		sel.elems[i] = c.selectorsWaiting.PushBack(sel)
	}
	return t.park("chan:select")
}

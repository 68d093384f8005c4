package coop

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestNewChannelRejectsBadArgs(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	_, err = NewChannel(nil, 2)
	require.Error(t, err)

	_, err = NewChannel(s, 0)
	require.Error(t, err)
}

func TestSendDirectModePairsWithWaitingReceiver(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	ch, err := NewChannel(s, 2)
	require.NoError(t, err)

	type rctx struct{ ch *Channel; out int64 }
	r := &rctx{ch: ch}
	Spawn(s, func(task *Task, c *rctx) int64 {
		var out unsafe.Pointer
		ret := c.ch.Recv(task, &out)
		require.Equal(t, int64(0), ret)
		c.out = *(*int64)(out)
		return 0
	}, r, false)

	value := int64(55)
	type sctx struct{ ch *Channel }
	Spawn(s, func(task *Task, c *sctx) int64 {
		return c.ch.Send(task, unsafe.Pointer(&value))
	}, &sctx{ch: ch}, false)

	require.Equal(t, int64(0), s.Run())
	require.Equal(t, int64(55), r.out)
}

func TestSendCapacityBoundaryFailsFast(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	ch, err := NewChannel(s, 2) // one sender may park; a second fails fast
	require.NoError(t, err)

	type sctx struct {
		ch  *Channel
		v   int64
		ret int64
	}
	first := &sctx{ch: ch, v: 1}
	second := &sctx{ch: ch, v: 2}
	entry := func(task *Task, c *sctx) int64 {
		c.ret = c.ch.Send(task, unsafe.Pointer(&c.v))
		return 0
	}
	Spawn(s, entry, first, false)
	Spawn(s, entry, second, false)

	// The second send overflows the waiter list and fails immediately;
	// the first is left parked with no receiver ever arriving, so the
	// scheduler's own "nothing runnable, nothing pending" sweep eventually
	// wakes it with EDEADLK too, letting Run itself finish cleanly.
	require.Equal(t, int64(0), s.Run())
	require.Equal(t, EDEADLK, first.ret)
	require.Equal(t, EDEADLK, second.ret, "second sender overflows the waiter list and fails immediately")
}

func TestChannelFreeIsNotATombstone(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	ch, err := NewChannel(s, 3)
	require.NoError(t, err)

	// Release the only owner reference before anyone has parked: this
	// must be a no-op, not a permanent shutdown of the channel.
	require.Equal(t, int64(0), ch.Free(nil, true))

	type rctx struct{ ch *Channel; out int64 }
	r := &rctx{ch: ch}
	Spawn(s, func(task *Task, c *rctx) int64 {
		var out unsafe.Pointer
		ret := c.ch.Recv(task, &out)
		require.Equal(t, int64(0), ret)
		c.out = *(*int64)(out)
		return 0
	}, r, false)

	value := int64(21)
	type sctx struct{ ch *Channel }
	Spawn(s, func(task *Task, c *sctx) int64 {
		return c.ch.Send(task, unsafe.Pointer(&value))
	}, &sctx{ch: ch}, false)

	require.Equal(t, int64(0), s.Run())
	require.Equal(t, int64(21), r.out, "rendezvous must still succeed after an early, pre-park owner release")
}

func TestRecvCapacityBoundaryCountsParkedSelectors(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	// Capacity 2: one receive-direction waiter may park (selector or plain
	// receiver), a second must fail fast with EDEADLK. A parked Select
	// counts against the same budget a later Recv checks, matching
	// Select's own fullness pre-check (select.go).
	ch, err := NewChannel(s, 2)
	require.NoError(t, err)

	type selCtx struct{ ret int64 }
	sel := &selCtx{}
	Spawn(s, func(task *Task, c *selCtx) int64 {
		var out unsafe.Pointer
		c.ret = Select(task, []*Channel{ch}, &out)
		return 0
	}, sel, false)

	type rctx struct{ ret int64 }
	r := &rctx{}
	Spawn(s, func(task *Task, c *rctx) int64 {
		task.Scheduler().Noop(task) // let the selector park first
		var out unsafe.Pointer
		c.ret = ch.Recv(task, &out)
		return 0
	}, r, false)

	require.Equal(t, int64(0), s.Run())
	require.Equal(t, EDEADLK, r.ret, "a parked selector already occupies the channel's one receive-direction slot")
}

func TestChannelFreeDrainsCurrentlyParkedWaiters(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	ch, err := NewChannel(s, 2)
	require.NoError(t, err)

	type rctx struct{ ch *Channel; ret int64 }
	r := &rctx{ch: ch}
	Spawn(s, func(task *Task, c *rctx) int64 {
		var out unsafe.Pointer
		c.ret = c.ch.Recv(task, &out)
		return 0
	}, r, false)

	type coordCtx struct{ ch *Channel }
	Spawn(s, func(task *Task, c *coordCtx) int64 {
		task.Scheduler().Noop(task) // let the receiver park first
		return c.ch.Free(task, true)
	}, &coordCtx{ch: ch}, false)

	require.Equal(t, int64(0), s.Run())
	require.Equal(t, EDEADLK, r.ret, "a receiver parked at the moment of the last release must wake with EDEADLK")
}

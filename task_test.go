package coop

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpawnRunsToCompletion(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	var ran bool
	ctx := struct{}{}
	Spawn(s, func(task *Task, _ *struct{}) int64 {
		ran = true
		require.Equal(t, TaskRunnable, task.Status())
		require.NotZero(t, task.ID())
		require.Same(t, s, task.Scheduler())
		return 7
	}, &ctx, false)

	require.Equal(t, int64(0), s.Run())
	require.True(t, ran)
}

func TestSpawnCopyCtxIsolatesCaller(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	type box struct{ v int }
	original := &box{v: 1}

	var observed *box
	Spawn(s, func(_ *Task, c *box) int64 {
		observed = c
		c.v = 99
		return 0
	}, original, true)

	require.Equal(t, int64(0), s.Run())
	require.NotSame(t, original, observed)
	require.Equal(t, 1, original.v, "copyCtx=true must not let the task mutate the caller's struct")
	require.Equal(t, 99, observed.v)
}

func TestSpawnSharedCtxIsVisibleToCaller(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	type box struct{ v int }
	shared := &box{v: 1}

	Spawn(s, func(_ *Task, c *box) int64 {
		c.v = 42
		return 0
	}, shared, false)

	require.Equal(t, int64(0), s.Run())
	require.Equal(t, 42, shared.v)
}

func TestSpawnNilSchedulerOrEntry(t *testing.T) {
	type box struct{}
	require.Equal(t, EINVAL, Spawn[box](nil, func(_ *Task, _ *box) int64 { return 0 }, &box{}, false))

	s, err := New()
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, EINVAL, Spawn[box](s, nil, &box{}, false))
}

func TestNoopRoundTrip(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	order := []string{}
	type ctx struct{}
	Spawn(s, func(task *Task, _ *ctx) int64 {
		order = append(order, "before")
		ret := task.Scheduler().Noop(task)
		require.Equal(t, int64(0), ret)
		order = append(order, "after")
		return 0
	}, &ctx{}, false)

	require.Equal(t, int64(0), s.Run())
	require.Equal(t, []string{"before", "after"}, order)
}

package coop

// TaskStatus is the lifecycle state of a Task, per spec.md §3.
type TaskStatus int

const (
	TaskRunnable TaskStatus = iota
	TaskSuspended
	TaskFinished
)

func (s TaskStatus) String() string {
	switch s {
	case TaskRunnable:
		return "runnable"
	case TaskSuspended:
		return "suspended"
	case TaskFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// yieldMsg is what a task's goroutine sends back to the scheduler's main
// loop each time it gives up the baton, either because it parked on a
// suspending primitive or because it ran to completion.
type yieldMsg struct {
	finished bool
	result   int64
}

// Task is one schedulable unit of work: a goroutine that runs exactly when
// the scheduler hands it the baton, and nothing else runs while it does.
// Task corresponds to spec.md §3's task record; the saved continuation the
// spec describes is, here, simply the task's own blocked goroutine stack.
type Task struct {
	id     int64
	sched  *Scheduler
	status TaskStatus
	reason string // diagnostic: what the task is currently parked on

	// resumeCh hands the baton TO the task: the main loop sends the
	// value a suspended primitive should return (or, for a fresh task,
	// an unused value) and the task's goroutine wakes up.
	resumeCh chan int64

	// yieldCh hands the baton BACK to the main loop: sent once per
	// suspension and once, with finished=true, when the task's entry
	// function returns.
	yieldCh chan yieldMsg

	resumeValue int64
	started     bool
	run         func() int64
}

// ID returns the task's scheduler-assigned identifier.
func (t *Task) ID() int64 { return t.id }

// Status reports the task's current lifecycle state.
func (t *Task) Status() TaskStatus { return t.status }

// Scheduler returns the scheduler this task belongs to, so a running
// task's entry function can spawn further tasks or issue further
// primitives without having to thread a *Scheduler through its own
// context type.
func (t *Task) Scheduler() *Scheduler { return t.sched }

func newTask(s *Scheduler, id int64, run func() int64) *Task {
	return &Task{
		id:       id,
		sched:    s,
		status:   TaskRunnable,
		resumeCh: make(chan int64),
		yieldCh:  make(chan yieldMsg),
		run:      run,
	}
}

// startGoroutine launches the task's goroutine. It blocks immediately on
// resumeCh until the main loop hands it the baton for the first time.
func (t *Task) startGoroutine() {
	go func() {
		<-t.resumeCh
		result := t.run()
		t.status = TaskFinished
		t.yieldCh <- yieldMsg{finished: true, result: result}
	}()
}

// park suspends the calling task until some other code path (a transport
// completion, a channel pairing, or scheduler-level deadlock resolution)
// calls wake. It must only be called from the task's own goroutine, after
// the task has registered itself wherever it expects to be woken from
// (the scheduler's pending map, or a channel's waiter list).
func (t *Task) park(reason string) int64 {
	t.status = TaskSuspended
	t.reason = reason
	t.sched.log.Debug("task parked", "task_id", t.id, "reason", reason)
	t.yieldCh <- yieldMsg{finished: false}
	v := <-t.resumeCh
	t.status = TaskRunnable
	return v
}

// wake marks the task runnable and appends it to the scheduler's run
// queue with the given resume value. Per spec.md §4.1.3, a task woken
// during another task's turn is scheduled strictly after whatever was
// already in the run queue; wake never itself resumes the task's
// goroutine — that only happens when the main loop later dequeues it.
func (t *Task) wake(value int64) {
	t.sched.log.Debug("task woken", "task_id", t.id, "value", value)
	t.resumeValue = value
	t.status = TaskRunnable
	t.sched.enqueueRunnable(t)
}

package jrtos

import "sync/atomic"

// MainTaskID is the scheduler id reserved for the task that calls
// [Scheduler.Init]; grounded on task.h's "id 1 is reserved for the main
// task."
const MainTaskID uint8 = 1

// maxPriority is the highest (numerically largest, lowest scheduling
// priority) value accepted by [InitTask]/[InitMainTask]; grounded on
// task.h's "prio/*0..7*/" comment, narrower than the 32-slot bitmap the
// scheduler otherwise supports.
const maxPriority = 7

// TaskMain is a task's entry point. A task ends either by calling
// [Task.End] itself or by returning from its entry point, after which the
// goroutine [Scheduler.AddTask] started calls End on its behalf.
// Grounded on task_main_f.
type TaskMain func(arg any)

// Task is the per-task record: priority, lifecycle state, the FIFO link
// used while blocked on a [Wait], and the goroutine plumbing that stands
// in for the saved machine context task_t literally carries. See doc.go's
// Platform Model: sp/regs/lr are vestigial (Go's runtime already manages
// the real stack of the goroutine backing this Task); nothing in the
// runtime reads or writes them, and they only mirror the original
// record's layout. Guard-band checking uses guardCanary, and
// [Scheduler.Stats] reads the yields/wakes counters.
type Task struct {
	// sp, regs, and lr mirror the saved machine context task_t carries
	// across a context switch on real hardware; vestigial here.
	sp   uintptr
	regs [8]uint32
	lr   uint32

	PrioBit uint32

	sched *Scheduler

	state *stateBox
	req   *requestBox

	ID       uint8
	Priority uint8

	// union field, valid per state: waitFor when WAITFOR, sleepMS when
	// SLEEP, requester when another task is parked awaiting this task's
	// deferred request to complete. Only the scheduler-loop goroutine and
	// this task's own goroutine touch these, and never concurrently,
	// because a task is never selected to run while still folding from
	// its previous suspension.
	waitFor   *Wait
	sleepMS   atomic.Uint32
	requester *Task

	// next threads this task into a Wait's FIFO; read and written only
	// while holding that Wait's mu.
	next *Task

	// resumeRing holds targets this task has asked the scheduler to
	// resume via Scheduler.Resume; see scheduler.go's drainTaskResumeRings.
	resumeRing *ring[*Task]

	// guardCanary is the software stack-guard fallback described in
	// region.go's CanaryGuard: a sentinel written once at task init and
	// checked at every suspension point this task passes through.
	guardCanary uint32

	// stack is a fixed-size scratch area standing in for task_t.stack;
	// real task data lives on the Go goroutine's own stack, but callers
	// that want to exercise WithStackSize get a slice sized to match.
	stack []byte

	entry TaskMain
	arg   any

	runCh  chan struct{}
	doneCh chan struct{}

	yields atomic.Uint64
	wakes  atomic.Uint64
}

const guardCanaryValue = 0xDEADC0DE

// InitTask prepares task to run entry(arg) once admitted by a scheduler via
// [Scheduler.AddTask]. priority must be in [0,7]. Grounded on init_task.
func InitTask(task *Task, priority uint8, entry TaskMain, arg any) error {
	if priority > maxPriority {
		return newError("InitTask", EINVAL, nil)
	}
	if entry == nil {
		return newError("InitTask", EINVAL, nil)
	}
	*task = Task{
		PrioBit:     1 << (31 - uint32(priority)),
		state:       newStateBox(StateSuspend),
		req:         &requestBox{},
		Priority:    priority,
		guardCanary: guardCanaryValue,
		entry:       entry,
		arg:         arg,
		runCh:       make(chan struct{}),
		doneCh:      make(chan struct{}),
		resumeRing:  newRing[*Task](8),
	}
	return nil
}

// InitMainTask prepares task to represent the goroutine calling
// [Scheduler.Init] itself, the only task whose initial context is adopted
// rather than constructed. Grounded on init_main_task.
func InitMainTask(priority uint8) (*Task, error) {
	task := new(Task)
	if priority > maxPriority {
		return nil, newError("InitMainTask", EINVAL, nil)
	}
	*task = Task{
		PrioBit:     1 << (31 - uint32(priority)),
		state:       newStateBox(StateSuspend),
		req:         &requestBox{},
		Priority:    priority,
		guardCanary: guardCanaryValue,
		runCh:       make(chan struct{}),
		doneCh:      make(chan struct{}),
		resumeRing:  newRing[*Task](8),
	}
	return task, nil
}

// State reports the task's current lifecycle state.
func (t *Task) State() State { return t.state.Load() }

// checkGuard validates the software canary guard-band; invoked at every
// suspension point. On mismatch it invokes the scheduler's fault handler
// synchronously, the same contract a real MPU fault would reach.
func (t *Task) checkGuard() {
	if t.guardCanary != guardCanaryValue {
		t.sched.fault(t)
	}
}

// Yield raises the scheduler interrupt without changing state; grounded on
// yield_task. Must be called only from this task's own goroutine.
func (t *Task) Yield() {
	t.checkGuard()
	t.yields.Add(1)
	t.sched.suspend(t)
}

// SleepMS parks the task for at least ms milliseconds, driven by
// [Scheduler.Tick]. Grounded on sleepms_task.
func (t *Task) SleepMS(ms uint32) {
	t.checkGuard()
	t.sleepMS.Store(ms)
	t.state.Store(StateSleep)
	t.sched.suspend(t)
}

// Suspend takes the task out of the runnable set until it is resumed via
// [Scheduler.Resume] or [Scheduler.ResumeQD]. The task keeps its id and
// priority slot. Grounded on suspend_task.
func (t *Task) Suspend() {
	t.checkGuard()
	t.state.Store(StateSuspend)
	t.sched.suspend(t)
}

// End terminates the task; its slot becomes free for re-initialization.
// Grounded on end_task. The deferred-request field, not the state alone,
// is what tells the scheduler's fold step to retire the task rather than
// fold it back into a runnable slot; see Scheduler's foldOutgoing. The
// calling goroutine must return immediately after End: the scheduler will
// never dispatch this task again.
func (t *Task) End() {
	t.checkGuard()
	t.state.Store(StateSuspend)
	t.req.Store(reqEnd)
	t.sched.suspend(t)
}

// Wait marks the task as preparing to block on w and yields; the actual
// decision to re-admit immediately (if w already has an outstanding event)
// or enqueue into w's FIFO is made by the scheduler at this suspension
// point. Grounded on wait_task.
func (t *Task) Wait(w *Wait) {
	t.checkGuard()
	t.waitFor = w
	t.state.Store(StateWaitFor)
	t.sched.suspend(t)
}

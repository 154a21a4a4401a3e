package jrtos

import "sync/atomic"

// State is a task's lifecycle state, mirroring task_state_e from the
// original scheduler.
type State uint32

const (
	// StateActive means the task is linked into the scheduler's active
	// priority slot and is eligible to run.
	StateActive State = iota
	// StateSleep means the task is parked on the sleep list until its
	// sleep deadline elapses or it is resumed early.
	StateSleep
	// StateSuspend means InitTask, Task.Suspend, or Task.End left the task
	// out of the runnable set; an admitted task keeps its id and priority
	// slot, and it is resumable.
	StateSuspend
	// StateWaitFor means the task is linked into a Wait's FIFO and is
	// blocked until that Wait is signalled.
	StateWaitFor
	// StateEnd means the task has terminated and will never run again.
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateSleep:
		return "Sleep"
	case StateSuspend:
		return "Suspend"
	case StateWaitFor:
		return "WaitFor"
	case StateEnd:
		return "End"
	default:
		return "Unknown"
	}
}

// resumable reports whether a task in this state may legally be resumed;
// the original expresses this as "state <= task_state_RESUMABLE" since
// StateSuspend is deliberately the boundary value (task_state_RESUMABLE).
func (s State) resumable() bool {
	return s <= StateSuspend
}

// request is a pending termination request, mirroring task_req_e. The
// scheduler only ever stores reqEnd (from Task.End) and reqStop (from
// Scheduler.Stop and guard-band faults); the other values are declared
// but not used. Resume/ResumeQD/Signal/SignalQD do not go through this
// field.
type request uint32

const (
	reqNone request = iota
	reqEnd
	reqSuspend
	reqResume
	reqSleep
	reqWaitFor
	reqWakeup
	reqStop
)

// stateBox is a lock-free holder of a task's State, used instead of plain
// field assignment because State is written by the owning task's
// goroutine and by the scheduler-loop goroutine, and read from arbitrary
// other goroutines (Scheduler.Stop, Scheduler.Tick, Task.State).
type stateBox struct {
	v atomic.Uint32
}

func newStateBox(initial State) *stateBox {
	b := &stateBox{}
	b.v.Store(uint32(initial))
	return b
}

func (b *stateBox) Load() State {
	return State(b.v.Load())
}

func (b *stateBox) Store(s State) {
	b.v.Store(uint32(s))
}

// CompareAndSwap attempts to move from "from" to "to" and reports success.
func (b *stateBox) CompareAndSwap(from, to State) bool {
	return b.v.CompareAndSwap(uint32(from), uint32(to))
}

// requestBox is the analogue of stateBox for the pending-request field.
type requestBox struct {
	v atomic.Uint32
}

func (b *requestBox) Load() request {
	return request(b.v.Load())
}

func (b *requestBox) Store(r request) {
	b.v.Store(uint32(r))
}

func (b *requestBox) CompareAndSwap(from, to request) bool {
	return b.v.CompareAndSwap(uint32(from), uint32(to))
}

package jrtos

import (
	"sync"
	"sync/atomic"
)

// counterSaturation is the hard limit on Wait's event counter (spec.md §3:
// "Reaching counter == 0xFFFF is a hard limit"). The Open Question of how
// to handle one more Signal past this point is resolved in DESIGN.md: it
// is reported to the caller as an [ENOMEM] [CodeError] rather than wrapping
// or silently dropping the event, since losing a wake-up silently would
// violate the wake-up-idempotence property spec.md §8 requires.
const counterSaturation = 0xFFFF

// Wait is a FIFO of blocked tasks plus a saturating event counter that
// absorbs signals racing ahead of waits. Grounded on task_wait_t.
type Wait struct {
	sched *Scheduler

	mu      sync.Mutex
	counter atomic.Uint32 // 0..counterSaturation, bumped via incrementUpTo
	last    *Task         // tail of the circular FIFO, threaded via Task.next
}

// NewWait returns a zeroed Wait associated with sched, matching
// task_wait_INIT (no waiters, no outstanding events).
func NewWait(sched *Scheduler) *Wait {
	return &Wait{sched: sched}
}

// hasWaiter reports whether any task is parked on this Wait; grounded on
// istask_taskwait.
func (w *Wait) hasWaiter() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last != nil
}

// enqueueLocked appends t to the FIFO. Caller must hold w.mu.
func (w *Wait) enqueueLocked(t *Task) {
	if w.last == nil {
		t.next = t
	} else {
		t.next = w.last.next
		w.last.next = t
	}
	w.last = t
}

// dequeueLocked removes and returns the FIFO head (the task after last),
// or nil if the FIFO is empty. Caller must hold w.mu.
func (w *Wait) dequeueLocked() *Task {
	if w.last == nil {
		return nil
	}
	head := w.last.next
	if head == w.last {
		w.last = nil
	} else {
		w.last.next = head.next
	}
	head.next = nil
	return head
}

// unchain removes t from the FIFO if present, wherever it sits, not just
// the head. Grounded on the Open Question of how stop_task interacts with
// a task parked WAITFOR: without this, forcing such a task to END would
// leave a dangling node in the FIFO for the next Signal to trip over.
// Called only from [Scheduler.Stop], before it forces the wake-up bitmap.
func (w *Wait) unchain(t *Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return
	}
	if w.last == t && t.next == t {
		w.last = nil
		t.next = nil
		return
	}
	head := w.last.next
	prev := w.last
	cur := head
	for {
		if cur == t {
			prev.next = cur.next
			if w.last == t {
				w.last = prev
			}
			cur.next = nil
			return
		}
		prev = cur
		cur = cur.next
		if cur == head {
			// full circle without finding t: not queued on this Wait.
			return
		}
	}
}

// admitOrEnqueue implements the scheduler's WAITFOR fold step (spec.md
// §4.6): if an event is already outstanding it is consumed and the task
// stays ACTIVE; otherwise the task is appended to the FIFO, atomically with
// respect to a concurrent Signal/SignalQD. Called only from the
// scheduler-loop goroutine.
func (w *Wait) admitOrEnqueue(t *Task) (admitted bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.counter.Load() > 0 {
		decrement32(&w.counter)
		return true
	}
	w.enqueueLocked(t)
	return false
}

// signalLocked implements the shared core of Signal/the wait-wake-up ring
// drain (spec.md §4.4): detach the FIFO head if one exists, else bump the
// saturating counter, as a single atomic step. Returns the woken task, or
// nil if none was waiting.
func (w *Wait) signalLocked() (*Task, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		if prev := incrementUpTo(&w.counter, counterSaturation); prev >= counterSaturation {
			return nil, newError("Signal", ENOMEM, nil)
		}
		return nil, nil
	}
	woken := w.dequeueLocked()
	woken.waitFor = nil
	return woken, nil
}

// Signal performs the synchronous variant of wake-up: if a task is
// blocked, its FIFO head is detached and promoted via the scheduler's
// wake-up bitmap; otherwise the event counter is incremented. The calling
// task then yields so the promotion takes effect at this scheduling point.
// Grounded on wakeup_task / §4.4 signal. Must be called from a task
// goroutine.
func (w *Wait) Signal() error {
	woken, err := w.signalLocked()
	if err != nil {
		return err
	}
	if woken != nil {
		w.sched.fastWake(woken)
	}
	w.sched.yieldCurrent()
	return nil
}

// SignalQD posts a deferred wake-up request for w onto the scheduler's
// wait-wake-up ring; the detach-or-increment decision runs later, when the
// scheduler drains that ring. Safe to call from any goroutine, including
// ones standing in for a hardware interrupt. Grounded on wakeupqd_task /
// §4.4 signal_qd.
func (w *Wait) SignalQD() error {
	return w.sched.enqueueWakeup(w)
}

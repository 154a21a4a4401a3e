package jrtos

import "sync/atomic"

// Semaphore is a counting semaphore layered on [Wait]. A positive value is
// the number of outstanding permits; a negative value is (the negation of)
// the number of tasks currently blocked in Wait. Grounded on §4.5.
type Semaphore struct {
	value atomic.Int32
	wait  *Wait
}

// NewSemaphore returns a Semaphore initialized to n outstanding permits,
// associated with sched for its blocking path.
func NewSemaphore(sched *Scheduler, n int32) *Semaphore {
	s := &Semaphore{wait: NewWait(sched)}
	s.value.Store(n)
	return s
}

// Signal atomically increments the permit count; if the post-increment
// value is <= 0, a blocked waiter is woken via the synchronous path.
// Grounded on §4.5 signal(sem). Must be called from a task goroutine,
// since a wake-up here yields the caller.
func (s *Semaphore) Signal() error {
	if s.value.Add(1) <= 0 {
		return s.wait.Signal()
	}
	return nil
}

// SignalQD is the deferred counterpart of Signal, safe from any goroutine.
// Grounded on §4.5 signal_qd(sem).
func (s *Semaphore) SignalQD() error {
	if s.value.Add(1) <= 0 {
		return s.wait.SignalQD()
	}
	return nil
}

// Wait atomically decrements the permit count; if the post-decrement value
// is negative, the calling task blocks until a matching Signal. Grounded
// on §4.5 wait(sem). Must be called from a task goroutine.
func (s *Semaphore) Wait(t *Task) {
	if s.value.Add(-1) < 0 {
		t.Wait(s.wait)
	}
}

// TryWait attempts a non-blocking decrement: it succeeds only if the
// stored value was strictly positive, leaving it untouched otherwise.
// Grounded on §4.5 try_wait(sem).
func (s *Semaphore) TryWait() error {
	if _, ok := decrementIfPositive(&s.value); !ok {
		return newError("TryWait", EAGAIN, nil)
	}
	return nil
}

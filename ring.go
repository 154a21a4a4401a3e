package jrtos

import "sync/atomic"

// ring is a bounded, single-producer/single-consumer FIFO of pointers,
// grounded on task_wakeup_t / task_queue_t from taskwait.h. The original
// keeps exactly two slots (queue[2]) since interrupt level only ever needs
// to race one deferred request ahead of the scheduler; the Go port keeps
// the same power-of-two/8-bit-index design but parameterizes capacity so a
// single implementation serves both the resume ring (*Task) and the
// wake-up ring (*Wait).
//
// rpos/wpos are plain uint8 wrapping counters, exactly as in the original:
// a full ring is detected by comparing the distance wpos-rpos against szm1,
// not by reserving a slot. This is safe because a SPSC ring never needs
// rpos==wpos to mean "full".
type ring[T any] struct {
	queue []T
	// next chains this ring onto the scheduler's list of rings with
	// pending data, mirroring task_wakeup_t.next / task_queue_t.next.
	next *ring[T]
	// keep is the number of scheduler rounds this ring stays linked into
	// that list after last going empty, mirroring the keep field; see
	// Scheduler.drainTaskResumeRings.
	keep uint8
	szm1 uint8
	rpos atomic.Uint32
	wpos atomic.Uint32
	// linked records whether this ring is currently threaded into a
	// scheduler's list of rings with pending data; owned by whichever
	// goroutine holds the list's mutex at the time, never the ring's own
	// producer/consumer.
	linked bool
}

// newRing allocates a ring with capacity slots, which must be a power of
// two no greater than 128: with 8-bit indices a full 256-slot ring would
// look empty. Only the power-of-two part is checked here. Grounded on
// init_taskwakeup/init_taskqueue.
func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("jrtos: ring capacity must be a positive power of two")
	}
	return &ring[T]{
		queue: make([]T, capacity),
		szm1:  uint8(capacity - 1),
	}
}

// hasData reports whether the ring holds at least one unread entry;
// grounded on isdata_taskwakeup/isdata_taskqueue.
func (r *ring[T]) hasData() bool {
	return uint8(r.rpos.Load()) != uint8(r.wpos.Load())
}

// depth reports the number of unread entries currently queued, used only
// for [QueueMetrics] sampling.
func (r *ring[T]) depth() int {
	return int(uint8(r.wpos.Load()) - uint8(r.rpos.Load()))
}

// write appends v in FIFO order, returning an [ENOMEM] [CodeError] if the
// ring is full; grounded on write_taskwakeup/write_taskqueue. Only the
// ring's single producer may call this.
func (r *ring[T]) write(op string, v T) error {
	rpos := uint8(r.rpos.Load())
	wpos := uint8(r.wpos.Load())
	if uint8(wpos-rpos) > r.szm1 {
		return newError(op, ENOMEM, nil)
	}
	r.queue[wpos&r.szm1] = v
	r.wpos.Store(uint32(wpos + 1))
	return nil
}

// read removes and returns the oldest entry; grounded on
// read_taskwakeup/read_taskqueue. Precondition: hasData() == true. Only
// the ring's single consumer (the scheduler) may call this.
func (r *ring[T]) read() T {
	rpos := uint8(r.rpos.Load())
	v := r.queue[rpos&r.szm1]
	r.rpos.Store(uint32(rpos + 1))
	return v
}

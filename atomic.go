package jrtos

import "sync/atomic"

// The original core runs on a Cortex-M4 and builds every one of these
// primitives out of hand-written LDREX/STREX loops (hw/cm4/atomic.c) so a
// read-modify-write cycle aborted by an interrupt retries instead of racing.
// On a normal OS thread the Go runtime's atomic package already gives us
// that same retry-until-committed property, so each primitive below is a
// thin, total wrapper with the original's semantics rather than a
// reimplementation of the LL/SC loop itself. Where the original returns 0
// for success (trylock, swap), these wrappers return true instead.

// bitSet atomically sets bits in *val and returns nothing; grounded on
// setbits_atomic.
func bitSet(val *atomic.Uint32, bits uint32) {
	for {
		old := val.Load()
		if val.CompareAndSwap(old, old|bits) {
			return
		}
	}
}

// bitClear atomically clears bits in *val; grounded on clearbits_atomic.
func bitClear(val *atomic.Uint32, bits uint32) {
	for {
		old := val.Load()
		if val.CompareAndSwap(old, old&^bits) {
			return
		}
	}
}

// bitSetClr atomically applies clearbits then setbits in one step; grounded
// on setclrbits_atomic.
func bitSetClr(val *atomic.Uint32, setbits, clearbits uint32) {
	for {
		old := val.Load()
		next := (old &^ clearbits) | setbits
		if val.CompareAndSwap(old, next) {
			return
		}
	}
}

// increment32 returns the post-increment value of *val; grounded on
// increment32_atomic.
func increment32(val *atomic.Uint32) uint32 {
	return val.Add(1)
}

// decrement32 returns the post-decrement value of *val; grounded on
// decrement32_atomic.
func decrement32(val *atomic.Uint32) uint32 {
	return val.Add(^uint32(0))
}

// increment16 returns the post-increment value of *val, wrapping modulo
// 2^16; grounded on increment16_atomic.
func increment16(val *atomic.Uint32) uint16 {
	for {
		old := val.Load()
		next := uint16(old) + 1
		if val.CompareAndSwap(old, uint32(next)) {
			return next
		}
	}
}

// decrement16 returns the post-decrement value of *val, wrapping modulo
// 2^16; grounded on decrement16_atomic.
func decrement16(val *atomic.Uint32) uint16 {
	for {
		old := val.Load()
		next := uint16(old) - 1
		if val.CompareAndSwap(old, uint32(next)) {
			return next
		}
	}
}

// decrementIfPositive does *val-- iff *val was strictly positive, reporting
// whether it did so; otherwise *val is left untouched. Grounded on
// decrementpositive_atomic. Used by Semaphore.TryWait.
func decrementIfPositive(val *atomic.Int32) (newVal int32, decremented bool) {
	for {
		old := val.Load()
		if old <= 0 {
			return old, false
		}
		next := old - 1
		if val.CompareAndSwap(old, next) {
			return next, true
		}
	}
}

// incrementUpTo does *val++ and returns the prior value, unless *val already
// equals maxval, in which case it is left unchanged and maxval is returned;
// grounded on incrementmax8_atomic. Used by Wait.signalLocked to bump the
// saturating event counter.
func incrementUpTo(val *atomic.Uint32, maxval uint32) uint32 {
	for {
		old := val.Load()
		if old >= maxval {
			return old
		}
		if val.CompareAndSwap(old, old+1) {
			return old
		}
	}
}

// trylock attempts to acquire a spinlock word, returning true on success;
// grounded on trylock_atomic.
func trylock(lock *atomic.Uint32) bool {
	return lock.CompareAndSwap(0, 1)
}

// unlock releases a spinlock word acquired with trylock; grounded on
// unlock_atomic. sync/atomic stores already carry the release-equivalent
// ordering the original obtains from its explicit rw_msync() barrier.
func unlock(lock *atomic.Uint32) {
	lock.Store(0)
}

// swapPointer performs *val = newval iff *val == oldval, reporting success;
// grounded on swap_atomic.
func swapPointer[T any](val *atomic.Pointer[T], oldval, newval *T) bool {
	return val.CompareAndSwap(oldval, newval)
}

// swapUint8 performs *val = newval iff *val == oldval, reporting success;
// grounded on swap8_atomic. Unused: Scheduler.claimID settled on a plain
// mutex instead, since id-claiming is an admission-time call rather than
// the scheduler's hot path.
func swapUint8(val *atomic.Uint32, oldval, newval uint8) bool {
	return val.CompareAndSwap(uint32(oldval), uint32(newval))
}

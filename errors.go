// Package jrtos provides numeric error codes for the jrtos runtime.
//
// The original C core never raises exceptions: every fallible operation
// returns a numeric code instead. Go idiom prefers typed sentinel errors
// over raw integers, so each code is exposed as a comparable [Code], and
// operations that fail wrap it in a [CodeError] recording which operation
// failed and, where relevant, the underlying cause.
package jrtos

import (
	"errors"
	"fmt"
)

// Code is one of the numeric error codes from the original specification.
type Code int

const (
	// EINVAL: malformed arguments (unknown priority, misaligned task,
	// duplicate priority at init, nil task table entry).
	EINVAL Code = iota + 1
	// EALREADY: the priority slot is already occupied.
	EALREADY
	// ENOMEM: all task ids in use, or no deferred-ring slot available.
	ENOMEM
	// EAGAIN: TryWait on a semaphore with value <= 0.
	EAGAIN
	// ENODATA: scheduler asked to remove from an empty internal queue.
	// Signals an internal consistency violation; the operation aborts.
	ENODATA
	// EBUSY: a synchronous resume was attempted on a task whose ring is
	// occupied and the current caller cannot yield.
	EBUSY
)

func (c Code) String() string {
	switch c {
	case EINVAL:
		return "EINVAL"
	case EALREADY:
		return "EALREADY"
	case ENOMEM:
		return "ENOMEM"
	case EAGAIN:
		return "EAGAIN"
	case ENODATA:
		return "ENODATA"
	case EBUSY:
		return "EBUSY"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// CodeError pairs a numeric [Code] with the operation that produced it and,
// optionally, the underlying cause.
type CodeError struct {
	Code  Code
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *CodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("jrtos: %s: %s: %v", e.Op, e.Code, e.Cause)
	}
	return fmt.Sprintf("jrtos: %s: %s", e.Op, e.Code)
}

// Unwrap returns the underlying cause, if any, for use with [errors.Is] and
// [errors.As].
func (e *CodeError) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same [Code] as e: either another
// [CodeError] or the internal code sentinel that [IsCode] passes to
// [errors.Is].
func (e *CodeError) Is(target error) bool {
	var other *CodeError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	var sentinel codeSentinel
	if errors.As(target, &sentinel) {
		return Code(sentinel) == e.Code
	}
	return false
}

// codeSentinel is the error form of a [Code] that [IsCode] hands to
// errors.Is; callers use IsCode(err, jrtos.EAGAIN).
type codeSentinel Code

func (s codeSentinel) Error() string { return Code(s).String() }

// IsCode reports whether err is, or wraps, a [CodeError] carrying code.
func IsCode(err error, code Code) bool {
	return errors.Is(err, codeSentinel(code))
}

// newError constructs a [CodeError] for op with the given code and optional
// cause.
func newError(op string, code Code, cause error) error {
	return &CodeError{Code: code, Op: op, Cause: cause}
}

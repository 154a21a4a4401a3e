// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jrtos

import (
	units "github.com/docker/go-units"
)

// schedulerOptions holds configuration options for Scheduler creation.
// Grounded on the teacher's loopOptions/resolveLoopOptions pattern,
// generalized from Loop's three boolean/enum knobs to the scheduler's
// richer set of pluggable collaborators (logger, metrics, guard, doorbell).
type schedulerOptions struct {
	logger       *Logger
	metrics      *Metrics
	guard        GuardController
	faultHandler func(*Task)
	idle         func()
	stackSize    int
	bell         doorbell
}

// --- Scheduler Options ---

// Option configures a [Scheduler]; see [NewScheduler].
type Option interface {
	apply(*schedulerOptions) error
}

// optionFunc implements Option.
type optionFunc struct {
	fn func(*schedulerOptions) error
}

func (o *optionFunc) apply(opts *schedulerOptions) error { return o.fn(opts) }

// WithLogger attaches a structured [Logger]; a nil or omitted logger
// resolves to a disabled zero-value logiface.Logger, matching the
// teacher's default-to-no-op global logger pattern.
func WithLogger(logger *Logger) Option {
	return &optionFunc{func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics attaches a [Metrics] collector; omit to run without
// observability overhead on the context-switch hot path. Mirrors the
// teacher's WithMetrics(bool), generalized from a flag to an injected
// collector so callers can aggregate several Schedulers' metrics.
func WithMetrics(m *Metrics) Option {
	return &optionFunc{func(opts *schedulerOptions) error {
		opts.metrics = m
		return nil
	}}
}

// WithGuard supplies a [GuardController] backing the scheduler's
// guard-band enforcement; defaults to a [CanaryGuard] when omitted, per
// §9's degrade-gracefully instruction for platforms without a real MPU.
func WithGuard(g GuardController) Option {
	return &optionFunc{func(opts *schedulerOptions) error {
		opts.guard = g
		return nil
	}}
}

// WithFaultHandler installs a hook called synchronously when
// [Task.checkGuard] detects a canary mismatch, after the fault is logged
// and before the offending task is retired. The scheduler logs the fault
// and retires only the offending task whether or not a hook is set; it
// never halts the process itself (§6 describes the hardware contract as
// application-defined, so a stricter reaction such as os.Exit is left to
// the hook).
func WithFaultHandler(h func(*Task)) Option {
	return &optionFunc{func(opts *schedulerOptions) error {
		opts.faultHandler = h
		return nil
	}}
}

// WithIdleFunc overrides the wait-for-event primitive invoked whenever
// priomask == 0, in place of the platform doorbell. Intended for tests
// that drive [Scheduler.Tick] and the deferred rings manually and would
// rather not wait on a real eventfd.
func WithIdleFunc(fn func()) Option {
	return &optionFunc{func(opts *schedulerOptions) error {
		opts.idle = fn
		return nil
	}}
}

// WithStackSize sets the scratch stack slice allocated for every admitted
// task, parsed with go-units so callers can write "4KiB" instead of
// hand-computing a byte count for the power-of-two task record §3
// describes. Must be a power of two of at least 256 bytes.
func WithStackSize(size string) Option {
	return &optionFunc{func(opts *schedulerOptions) error {
		n, err := units.RAMInBytes(size)
		if err != nil {
			return newError("WithStackSize", EINVAL, err)
		}
		if n < 256 || n&(n-1) != 0 {
			return newError("WithStackSize", EINVAL, nil)
		}
		opts.stackSize = int(n)
		return nil
	}}
}

// WithTickSource installs bell as the scheduler's doorbell implementation
// directly, bypassing platform auto-detection. Exists for tests that want
// a deterministic, synchronously-rung doorbell instead of a real eventfd
// or buffered channel.
func WithTickSource(bell doorbell) Option {
	return &optionFunc{func(opts *schedulerOptions) error {
		opts.bell = bell
		return nil
	}}
}

// resolveOptions applies Option instances to schedulerOptions. Grounded on
// resolveLoopOptions.
func resolveOptions(opts []Option) (*schedulerOptions, error) {
	cfg := &schedulerOptions{stackSize: defaultStackSize}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

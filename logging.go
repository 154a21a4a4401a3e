package jrtos

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger type every [Scheduler] accepts, matching
// the teacher's default-to-no-op global logger pattern but scoped to a
// single Scheduler instance instead of a package-level global: a runtime
// with more than one Scheduler (one per simulated CPU) would otherwise have
// no way to tell their log lines apart.
//
// The zero value of [logiface.Logger] is itself a safe, fully disabled
// logger (see logiface.Event's zero-value contract), so [Scheduler] never
// needs to nil-check before logging.
type Logger = logiface.Logger[*stumpy.Event]

// NewLogger builds a [Logger] backed by stumpy, the teacher's structured
// logging backend, writing its events to w. No minimum level is set here.
func NewLogger(w logiface.Writer[*stumpy.Event]) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithWriter(w),
	)
}

// logTaskAdmitted records a successful Scheduler.AddTask.
func (s *Scheduler) logTaskAdmitted(t *Task) {
	s.logger.Info().
		Int(`id`, int(t.ID)).
		Int(`priority`, int(t.Priority)).
		Log(`task admitted`)
}

// logTaskEnded records a task reaching StateEnd.
func (s *Scheduler) logTaskEnded(t *Task) {
	s.logger.Info().
		Int(`id`, int(t.ID)).
		Log(`task ended`)
}

// logFault records a guard-band violation routed to the fault handler.
func (s *Scheduler) logFault(t *Task) {
	s.logger.Err().
		Int(`id`, int(t.ID)).
		Log(`guard-band fault`)
}

// logRingFull records a deferred ring rejecting a write with ENOMEM.
func (s *Scheduler) logRingFull(ring string) {
	s.logger.Warning().
		Str(`ring`, ring).
		Log(`deferred ring full`)
}

// Package jrtos provides a cooperative, priority-scheduled task runtime
// for single-CPU, interrupt-driven execution environments.
//
// # Architecture
//
// The runtime is built around a [Scheduler] core that owns a fixed-size
// task table, a priority bitmap, and a sleep bitmap. Application code
// expresses concurrent activity as [Task] values that yield, sleep, wait on
// a [Wait] condition, or call one another, while the scheduler guarantees
// bounded-time context switching, strict priority ordering, and race-free
// signalling between interrupt-level producers and task-level consumers.
//
// Three tightly coupled layers make up the core:
//
//  1. The task model ([Task], its lifecycle states, and the operations a
//     task may invoke on itself or on another task).
//  2. The [Scheduler] (priority selection, the context-switch trampoline,
//     and the deferred wake-up pipeline used by interrupt-level code to
//     unblock tasks). The wake-up bitmap path ([Scheduler.Stop],
//     [Scheduler.Tick]) is lock-free; [Scheduler.ResumeQD] and
//     [Wait.SignalQD] post to rings shared by all producers, and each
//     write is serialized by a short mutex.
//  3. Synchronization built on the scheduler: [Wait], a FIFO of blocked
//     tasks plus a saturating event counter, and [Semaphore] layered on
//     top of it.
//
// # Platform Model
//
// There is exactly one "CPU" per [Scheduler]: an OS thread pinned with
// runtime.LockOSThread. Every [Task] is a goroutine, but only the task
// holding the scheduler's run token is permitted to execute past its last
// suspension point; every other task goroutine is parked on a channel.
// This reproduces the single-CPU, cooperative-among-equal-priority
// semantics of the embedded original without requiring real hardware
// interrupts, an MPU, or an assembly context-switch trampoline.
//
// # Thread Safety
//
// [Task]-local operations (Yield, SleepMS, Suspend, End, Wait) may only be
// called by the task that owns them, from its own goroutine.
// [Scheduler.ResumeQD], [Scheduler.Stop], [Scheduler.Tick] and
// [Wait.SignalQD] are safe from any goroutine, including ones standing in
// for hardware interrupt handlers. [Scheduler.Resume] and [Wait.Signal]
// yield the currently running task afterwards, so they must be called
// from that task's own goroutine.
//
// # Usage
//
//	sched, err := jrtos.NewScheduler(jrtos.WithStackSize("4KiB"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sched.Close()
//
//	main, err := jrtos.InitMainTask(0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := sched.Init(main); err != nil {
//	    log.Fatal(err)
//	}
//
//	worker := new(jrtos.Task)
//	jrtos.InitTask(worker, 1, func(arg any) {
//	    defer worker.End()
//	    for i := 0; i < 10; i++ {
//	        worker.Yield()
//	    }
//	}, nil)
//	if err := sched.AddTask(worker); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Codes
//
// Local programming errors are returned as [CodeError] values carrying a
// [Code] ([EINVAL], [EALREADY], [ENOMEM], [EAGAIN], [ENODATA], [EBUSY]),
// which [IsCode] matches; the runtime never panics in response to them. A stack overflow into a
// task's guard-band is a hardware-class fault, routed to an
// application-supplied handler instead.
package jrtos

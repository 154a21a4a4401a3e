package jrtos

import (
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ringKeepRounds is the TTL (in scheduler-loop rounds) a task-resume ring
// stays linked into Scheduler.taskResumeRings after it last went empty,
// mirroring task_wakeup_t.keep's list-maintenance amortization.
const ringKeepRounds = 4

// defaultStackSize is used when no [WithStackSize] option is supplied.
const defaultStackSize = 4096

// doorbell is the platform seam described by doc.go's Platform Model and
// SPEC_FULL's "glue to hardware" module: ring requests a scheduling pass
// from any goroutine without blocking; wait parks the scheduler-loop
// goroutine until the next ring, standing in for the wait-for-event
// instruction of §6. Implementations live in scheduler_linux.go (a real
// golang.org/x/sys/unix eventfd) and scheduler_other.go (a buffered
// channel), exactly the platform/portable split §9 calls for.
type doorbell interface {
	ring()
	wait()
	close() error
}

// Scheduler is the runtime core: a fixed 32-slot task table, three
// priority-indexed bitmaps, and the deferred wake-up pipeline that lets
// any goroutine (standing in for a hardware interrupt) make a task
// runnable. The wake-up bitmap is updated lock-free; the shared
// interrupt-resume and wait-wake-up rings are written under a mutex.
// Grounded on scheduler.h/scheduler.c.
type Scheduler struct {
	idMu   sync.Mutex
	freeid uint8
	idmap  [32]atomic.Pointer[Task]

	priotask [32]atomic.Pointer[Task]

	// priomask/sleepmask/wakeupmask are padded apart (see sizeof.go) so a
	// task-local write to one never false-shares the cache line of another
	// bitmap written concurrently by a remote goroutine.
	priomask   atomic.Uint32
	_          [sizeOfCacheLine - sizeOfAtomicUint32]byte
	sleepmask  atomic.Uint32
	_          [sizeOfCacheLine - sizeOfAtomicUint32]byte
	wakeupmask atomic.Uint32
	_          [sizeOfCacheLine - sizeOfAtomicUint32]byte

	// taskResumeRings is the scheduler's list of non-empty per-task resume
	// rings (§4.6 source 2, the synchronous Resume path); each task owns
	// its own ring as sole producer, so only the list linkage itself needs
	// a lock, not the ring contents.
	taskResumeMu    sync.Mutex
	taskResumeRings *ring[*Task]

	// interruptResumeRing is the single shared ring ResumeQD posts to; it
	// exists because ResumeQD, unlike Resume, may be called from a
	// goroutine that is not any task's own (standing in for interrupt
	// context), so it cannot use a task-owned ring as its producer side.
	// This is the Open Question #3 resolution: "use resume_qd_task"
	// whenever a caller cannot guarantee it owns the producer side of a
	// task-resume ring.
	interruptResumeMu   sync.Mutex
	interruptResumeRing *ring[*Task]

	// waitWakeupRing carries deferred Wait.SignalQD requests; also
	// multi-producer-safe via a mutex, for the same reason.
	waitWakeupMu   sync.Mutex
	waitWakeupRing *ring[*Wait]

	current atomic.Pointer[Task]
	backCh  chan *Task
	bell    doorbell
	closeCh chan struct{}
	closed  atomic.Bool

	guard        GuardController
	faultHandler func(*Task)
	logger       *Logger
	metrics      *Metrics
	tps          *TPSCounter
	stackSize    int

	lastDispatch time.Time
}

// NewScheduler constructs a [Scheduler] with the given options but does
// not start it; call [Scheduler.Init] with the calling goroutine's own
// main task to begin scheduling.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		freeid:              MainTaskID,
		taskResumeRings:     nil,
		interruptResumeRing: newRing[*Task](8),
		waitWakeupRing:      newRing[*Wait](8),
		backCh:              make(chan *Task),
		closeCh:             make(chan struct{}),
		guard:               cfg.guard,
		faultHandler:        cfg.faultHandler,
		logger:              cfg.logger,
		metrics:             cfg.metrics,
		stackSize:           cfg.stackSize,
	}
	if s.guard == nil {
		s.guard = NewCanaryGuard()
	}
	if s.logger == nil {
		s.logger = new(Logger)
	}
	if s.metrics != nil {
		s.tps = NewTPSCounter(10*time.Second, 100*time.Millisecond)
	}

	switch {
	case cfg.bell != nil:
		s.bell = cfg.bell
	case cfg.idle != nil:
		s.bell = &funcDoorbell{ch: make(chan struct{}, 1), fn: cfg.idle}
	default:
		bell, err := newDoorbell()
		if err != nil {
			return nil, newError("NewScheduler", EINVAL, err)
		}
		s.bell = bell
	}

	return s, nil
}

// Init adopts the calling goroutine as main, the task whose context is
// never constructed but taken over in place; see [InitMainTask].
// Grounded on init_scheduler, generalized to this single-task-at-a-time
// call rather than validating an up-front array, since Go tasks are
// admitted dynamically via [Scheduler.AddTask]. Init returns without
// blocking: the caller already holds the run token main represents, and
// continues executing its own code immediately after Init returns.
func (s *Scheduler) Init(main *Task) error {
	if main == nil || main.entry != nil {
		return newError("Init", EINVAL, nil)
	}
	if !s.priotask[main.Priority].CompareAndSwap(nil, main) {
		return newError("Init", EALREADY, nil)
	}
	main.ID = MainTaskID
	main.sched = s
	main.state.Store(StateActive)
	s.idmap[MainTaskID].Store(main)
	s.current.Store(main)
	bitSet(&s.priomask, main.PrioBit)

	if main.stack == nil {
		main.stack = make([]byte, s.stackSize)
	}
	if err := s.guard.Config(nil); err != nil {
		return err
	}

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		s.loop()
	}()
	return nil
}

// claimID scans idmap starting at freeid for a free slot. Grounded on
// add_task's id-claim loop; simplified from a raw CAS loop to a mutex
// since AddTask is an admission-time call, not the scheduler's hot path,
// and Go gives us an uncontended mutex far more cheaply than hand-rolled
// compare-and-swap retries would buy back here.
func (s *Scheduler) claimID() (uint8, bool) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	for i := 0; i < 32; i++ {
		id := uint8((int(s.freeid) + i) % 32)
		if id == 0 {
			continue
		}
		if s.idmap[id].Load() == nil {
			s.freeid = id + 1
			return id, true
		}
	}
	return 0, false
}

// AddTask admits t into the scheduler: claims a free id, claims t's
// priority slot via compare-and-swap, starts its goroutine parked on its
// run token, and raises the wake-up bit so it enters ACTIVE at the next
// scheduling point. Grounded on add_task.
func (s *Scheduler) AddTask(t *Task) error {
	if t == nil || t.entry == nil {
		return newError("AddTask", EINVAL, nil)
	}
	id, ok := s.claimID()
	if !ok {
		return newError("AddTask", ENOMEM, nil)
	}
	if !s.priotask[t.Priority].CompareAndSwap(nil, t) {
		s.idMu.Lock()
		s.idmap[id].Store(nil)
		s.idMu.Unlock()
		return newError("AddTask", EALREADY, nil)
	}
	t.ID = id
	t.sched = s
	if t.stack == nil {
		t.stack = make([]byte, s.stackSize)
	}
	s.idmap[id].Store(t)

	go func() {
		<-t.runCh
		t.entry(t.arg)
		t.End()
	}()

	bitSet(&s.wakeupmask, t.PrioBit)
	s.bell.ring()
	s.logTaskAdmitted(t)
	return nil
}

// Resume synchronously promotes target toward ACTIVE through the calling
// task's own resume ring, retrying across a yield if that ring is
// momentarily full, then yields itself so the promotion takes effect at
// this scheduling point. Grounded on resume_task. Must be called from the
// resuming task's own goroutine; a caller with no task identity (an
// interrupt simulation) must use [Scheduler.ResumeQD] instead (Open
// Question #3).
func (s *Scheduler) Resume(target *Task) error {
	caller := s.current.Load()
	if caller == nil {
		return newError("Resume", EINVAL, nil)
	}
	for {
		err := caller.resumeRing.write("Resume", target)
		if err == nil {
			break
		}
		if !IsCode(err, ENOMEM) {
			return err
		}
		caller.Yield()
	}
	s.linkTaskResumeRing(caller.resumeRing)
	if s.metrics != nil {
		s.metrics.Queue.UpdateTaskResume(caller.resumeRing.depth())
	}
	s.bell.ring()
	caller.Yield()
	return nil
}

// ResumeQD enqueues a deferred resume of target and returns without
// yielding. Safe from any goroutine, including one standing in for a
// hardware interrupt with no task identity of its own. Grounded on
// resume_qd_task.
func (s *Scheduler) ResumeQD(target *Task) error {
	s.interruptResumeMu.Lock()
	err := s.interruptResumeRing.write("ResumeQD", target)
	depth := s.interruptResumeRing.depth()
	s.interruptResumeMu.Unlock()
	if err != nil {
		s.logRingFull("interrupt-resume")
		return err
	}
	if s.metrics != nil {
		s.metrics.Queue.UpdateInterruptResume(depth)
	}
	s.bell.ring()
	return nil
}

// Stop requests target's termination at its next scheduling point.
// Grounded on stop_task. Safe from any goroutine. If target is currently
// parked in a [Wait]'s FIFO, it is unchained immediately rather than left
// to dangle until the scheduler happens to fold it, resolving the Open
// Question on WAITFOR/stop interaction.
func (s *Scheduler) Stop(target *Task) error {
	if target == nil {
		return newError("Stop", EINVAL, nil)
	}
	target.req.Store(reqStop)
	if target.State() == StateWaitFor {
		if w := target.waitFor; w != nil {
			w.unchain(target)
		}
	}
	bitSet(&s.wakeupmask, target.PrioBit)
	s.bell.ring()
	return nil
}

// Tick runs the periodic sleep-tick entry point: every sleeping task's
// remaining milliseconds is reduced by deltaMS; a task reaching zero is
// posted to the wake-up bitmap. Returns the count of newly runnable
// tasks, so a timer handler can raise the scheduler interrupt exactly
// once when that count is nonzero. Grounded on periodic_scheduler. Safe
// from any goroutine, intended to be driven by a higher-priority timer
// source than the scheduler-loop itself.
func (s *Scheduler) Tick(deltaMS uint32) uint32 {
	mask := s.sleepmask.Load()
	var woke uint32
	for mask != 0 {
		p := bits.LeadingZeros32(mask)
		bit := uint32(1) << (31 - p)
		mask &^= bit
		t := s.priotask[p].Load()
		if t == nil || t.State() != StateSleep {
			continue
		}
		remaining := t.sleepMS.Load()
		var next uint32
		if remaining > deltaMS {
			next = remaining - deltaMS
		}
		t.sleepMS.Store(next)
		if next == 0 {
			bitSet(&s.wakeupmask, t.PrioBit)
			woke++
		}
	}
	if woke > 0 {
		s.bell.ring()
	}
	return woke
}

// Stats reports the cumulative yield and wake-up counts for the task
// holding id, a supplemented feature grounded on test_main.c's per-task
// tallies.
func (s *Scheduler) Stats(id uint8) (yields, wakes uint64, err error) {
	t := s.idmap[id].Load()
	if t == nil {
		return 0, 0, newError("Stats", EINVAL, nil)
	}
	return t.yields.Load(), t.wakes.Load(), nil
}

// Close stops the scheduler-loop goroutine and releases the doorbell.
// Blocked tasks are not unblocked; a caller that wants a clean shutdown
// should Stop every admitted task first.
func (s *Scheduler) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.closeCh)
	return s.bell.close()
}

// suspend is the common handoff every task-local operation uses: publish
// the outgoing task to the scheduler-loop goroutine and block until this
// task is selected to run again. Grounded on the "raise the scheduler
// interrupt" half of every task_*-suite function in §4.3.
func (s *Scheduler) suspend(t *Task) {
	s.backCh <- t
	<-t.runCh
}

// fault routes a guard-band violation to the configured handler, then
// forces the offending task to retire: the canary mismatch is treated as
// equivalent to the hardware MPU fault contract §6 describes, scoped to
// just the offending task rather than halting the whole process, which
// would be a poor default for a library embedded in a larger Go program.
func (s *Scheduler) fault(t *Task) {
	s.logFault(t)
	if s.faultHandler != nil {
		s.faultHandler(t)
	}
	t.state.Store(StateSuspend)
	t.req.Store(reqStop)
	s.suspend(t)
}

// linkTaskResumeRing threads r into the scheduler's list of resume rings
// with pending data, if it is not linked already.
func (s *Scheduler) linkTaskResumeRing(r *ring[*Task]) {
	s.taskResumeMu.Lock()
	defer s.taskResumeMu.Unlock()
	if r.linked {
		return
	}
	r.linked = true
	r.keep = ringKeepRounds
	r.next = s.taskResumeRings
	s.taskResumeRings = r
}

// enqueueWakeup posts w onto the shared wait-wake-up ring for deferred
// draining. Grounded on wakeupqd_task's associated-scheduler forwarding.
func (s *Scheduler) enqueueWakeup(w *Wait) error {
	s.waitWakeupMu.Lock()
	err := s.waitWakeupRing.write("SignalQD", w)
	depth := s.waitWakeupRing.depth()
	s.waitWakeupMu.Unlock()
	if err != nil {
		s.logRingFull("wait-wakeup")
		return err
	}
	if s.metrics != nil {
		s.metrics.Queue.UpdateWaitWakeup(depth)
	}
	s.bell.ring()
	return nil
}

// fastWake posts t directly into the wake-up bitmap, the fast path used
// by [Wait.Signal] once it has already detached t from its FIFO.
func (s *Scheduler) fastWake(t *Task) {
	bitSet(&s.wakeupmask, t.PrioBit)
	s.bell.ring()
}

// yieldCurrent yields whichever task currently holds the run token; used
// by [Wait.Signal], which is a task-local-style operation that (like
// yield_task) never takes an explicit task argument.
func (s *Scheduler) yieldCurrent() {
	if t := s.current.Load(); t != nil {
		t.Yield()
	}
}

// setPrioBit/clearPrioBit record or remove t's priority slot from
// priomask; called only from the scheduler-loop goroutine.
func (s *Scheduler) setPrioBit(t *Task)   { bitSet(&s.priomask, t.PrioBit) }
func (s *Scheduler) clearPrioBit(t *Task) { bitClear(&s.priomask, t.PrioBit) }

// terminate removes t from the task table entirely: clears its priority
// and sleep bits, nulls its idmap/priotask entries, and transitions it to
// END. Grounded on the SUSPEND fold's "if t.req == END" branch, widened to
// every fold path per the Open Question #2 resolution (stop-while-
// WAITFOR/SLEEP also retires here instead of resuming normal execution).
func (s *Scheduler) terminate(t *Task) {
	s.clearPrioBit(t)
	bitClear(&s.sleepmask, t.PrioBit)
	t.state.Store(StateEnd)
	s.idmap[t.ID].CompareAndSwap(t, nil)
	s.priotask[t.Priority].CompareAndSwap(t, nil)
	s.logTaskEnded(t)
	close(t.doneCh)
}

// promoteToActive is the shared "admit to ACTIVE" step reached from the
// wake-up bitmap, either resume ring, and the wait-wake-up ring drains.
// It checks the deferred-request field before promoting, so a task
// stopped while SLEEP/WAITFOR retires instead of resuming. A task that is
// already ACTIVE - the self re-arm foldOutgoing's yield_task case posts -
// just gets its priomask bit set back for the next round; it isn't a real
// wake-up, so the wake counter is left alone.
func (s *Scheduler) promoteToActive(t *Task) {
	st := t.state.Load()
	if st == StateEnd {
		return
	}
	if req := t.req.Load(); req == reqEnd || req == reqStop {
		s.terminate(t)
		return
	}
	if st == StateActive {
		s.setPrioBit(t)
		return
	}
	if st == StateSleep {
		bitClear(&s.sleepmask, t.PrioBit)
	}
	t.waitFor = nil
	t.wakes.Add(1)
	t.state.Store(StateActive)
	s.setPrioBit(t)
}

// foldOutgoing is task_scheduler's "if t.state != ACTIVE, fold t" step,
// run once per scheduler-loop iteration against whichever task most
// recently called a suspending operation.
func (s *Scheduler) foldOutgoing(t *Task) {
	if req := t.req.Load(); req == reqEnd || req == reqStop {
		s.terminate(t)
		return
	}
	switch t.state.Load() {
	case StateActive:
		// yield_task: t steps aside for this scheduling round only. Its
		// slot is cleared now and re-armed via the wake-up bitmap, which
		// this loop iteration has already drained - so t cannot be
		// reselected until the NEXT round, giving any other runnable
		// task, regardless of priority, exactly one intervening turn.
		s.clearPrioBit(t)
		s.fastWake(t)
	case StateSuspend:
		s.clearPrioBit(t)
	case StateSleep:
		s.clearPrioBit(t)
		bitSet(&s.sleepmask, t.PrioBit)
	case StateWaitFor:
		w := t.waitFor
		s.clearPrioBit(t)
		if w.admitOrEnqueue(t) {
			t.waitFor = nil
			t.state.Store(StateActive)
			s.setPrioBit(t)
		}
	}
}

// drainWakeupmask implements wake-up pipeline source 1 (§4.6): atomically
// claim the whole bitmap, then promote every set priority's task.
func (s *Scheduler) drainWakeupmask() {
	mask := s.wakeupmask.Swap(0)
	for mask != 0 {
		p := bits.LeadingZeros32(mask)
		bit := uint32(1) << (31 - p)
		mask &^= bit
		if t := s.priotask[p].Load(); t != nil {
			s.promoteToActive(t)
		}
	}
}

// drainTaskResumeRings implements wake-up pipeline source 2's
// task-context half (§4.6): walk the list of non-empty per-task resume
// rings, draining each to completion and decrementing its keep TTL once
// it runs dry, unlinking at zero.
func (s *Scheduler) drainTaskResumeRings() {
	s.taskResumeMu.Lock()
	defer s.taskResumeMu.Unlock()
	var prev *ring[*Task]
	cur := s.taskResumeRings
	for cur != nil {
		for cur.hasData() {
			s.promoteToActive(cur.read())
		}
		next := cur.next
		if cur.hasData() {
			cur.keep = ringKeepRounds
			prev = cur
		} else if cur.keep > 0 {
			cur.keep--
			prev = cur
		} else {
			if prev == nil {
				s.taskResumeRings = next
			} else {
				prev.next = next
			}
			cur.linked = false
			cur.next = nil
		}
		cur = next
	}
}

// drainInterruptResumeRing implements wake-up pipeline source 2's
// interrupt-context half: the single shared ring ResumeQD posts to.
func (s *Scheduler) drainInterruptResumeRing() {
	for s.interruptResumeRing.hasData() {
		s.promoteToActive(s.interruptResumeRing.read())
	}
}

// drainWaitWakeupRing implements wake-up pipeline source 3 (§4.6): each
// entry triggers the "remove one FIFO head" logic of §4.4.
func (s *Scheduler) drainWaitWakeupRing() {
	for s.waitWakeupRing.hasData() {
		w := s.waitWakeupRing.read()
		woken, err := w.signalLocked()
		if err != nil {
			s.logRingFull("wait-wakeup-saturated")
			continue
		}
		if woken != nil {
			s.promoteToActive(woken)
		}
	}
}

// drainWakeups runs all three wake-up pipeline sources once.
func (s *Scheduler) drainWakeups() {
	s.drainWakeupmask()
	s.drainTaskResumeRings()
	s.drainInterruptResumeRing()
	s.drainWaitWakeupRing()
}

// schedule is task_scheduler's selection policy: drain, idle-wait while
// nothing is runnable, then pick the highest-priority runnable task,
// retiring any selected task whose deferred request asks for
// termination and re-selecting. Pure with respect to everything but the
// scheduler's own tables; grounded on task_scheduler's selection half.
func (s *Scheduler) schedule() *Task {
	for {
		mask := s.priomask.Load()
		if mask == 0 {
			s.bell.wait()
			s.drainWakeups()
			continue
		}
		p := bits.LeadingZeros32(mask)
		t := s.priotask[p].Load()
		if t == nil {
			bitClear(&s.priomask, uint32(1)<<(31-p))
			continue
		}
		if req := t.req.Load(); req == reqEnd || req == reqStop {
			s.terminate(t)
			continue
		}
		return t
	}
}

// loop is the scheduler's dedicated "CPU" goroutine: the context-switch
// trampoline tail-called from the (simulated) scheduler interrupt in a
// continuous cycle instead of a one-shot ISR return. Grounded on the
// Context switch steps of §4.6, minus the register save/restore steps a
// real trampoline needs and this port's goroutines already handle.
func (s *Scheduler) loop() {
	for {
		select {
		case <-s.closeCh:
			return
		case outgoing := <-s.backCh:
			// Drain first, so wake-ups armed by the outgoing task's own
			// yield_task fold (below) aren't visible until the NEXT
			// iteration's drain - see foldOutgoing's StateActive case.
			s.drainWakeups()
			s.foldOutgoing(outgoing)
		}
		incoming := s.schedule()
		s.guard.Update(0, []Region{guardBandFor(incoming)})
		s.current.Store(incoming)
		if s.metrics != nil {
			now := time.Now()
			if !s.lastDispatch.IsZero() {
				s.metrics.Latency.Record(now.Sub(s.lastDispatch))
			}
			s.lastDispatch = now
			s.tps.Increment()
			s.metrics.mu.Lock()
			s.metrics.TPS = s.tps.TPS()
			s.metrics.mu.Unlock()
		}
		select {
		case incoming.runCh <- struct{}{}:
		case <-s.closeCh:
			return
		}
	}
}

// guardBandFor derives the guard-band [Region] placed just below a
// task's stack, per §3's "guard-band of exactly one MPU sub-region"
// description. The Go port has no real stack to protect, so this is a
// symbolic region over the task's scratch [Task.stack] slice rather than
// a literal hardware address, matching the [CanaryGuard] fallback's
// documented weaker guarantee.
func guardBandFor(t *Task) Region {
	size := uint32(len(t.stack))
	if size == 0 || size&(size-1) != 0 {
		size = defaultStackSize
	}
	return Region{
		Base:         uintptr(t.ID),
		Size:         size,
		PrivAccess:   AccessRead,
		UnprivAccess: AccessNone,
	}
}

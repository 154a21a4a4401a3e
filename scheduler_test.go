package jrtos

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestScheduler builds a Scheduler driven by a no-op idle function, so
// tests never depend on a real platform doorbell.
func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	sched, err := NewScheduler(WithIdleFunc(func() { time.Sleep(time.Millisecond) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Close() })
	return sched
}

// pumpUntil repeatedly yields main - the only way a test's own goroutine,
// standing in for the task that called Scheduler.Init, hands the run
// token back to the scheduler-loop so deferred admissions/resumes/ticks
// actually get folded in - until cond reports true or timeout elapses.
func pumpUntil(t *testing.T, main *Task, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition never became true before timeout")
		}
		main.Yield()
	}
}

func TestScheduler_AddTask_RunsToCompletion(t *testing.T) {
	sched := newTestScheduler(t)
	main, err := InitMainTask(0)
	require.NoError(t, err)
	require.NoError(t, sched.Init(main))

	var ran bool
	var worker Task
	require.NoError(t, InitTask(&worker, 1, func(any) {
		ran = true
	}, nil))
	require.NoError(t, sched.AddTask(&worker))

	pumpUntil(t, main, 5*time.Second, func() bool { return worker.State() == StateEnd })
	assert.True(t, ran)
}

func TestScheduler_HigherPriorityRunsFirst(t *testing.T) {
	sched := newTestScheduler(t)
	main, err := InitMainTask(0)
	require.NoError(t, err)
	require.NoError(t, sched.Init(main))

	var mu sync.Mutex
	var trace []string
	record := func(name string) {
		mu.Lock()
		trace = append(trace, name)
		mu.Unlock()
	}

	var low, high Task
	require.NoError(t, InitTask(&low, 7, func(any) { record("low") }, nil))
	require.NoError(t, InitTask(&high, 1, func(any) { record("high") }, nil))

	// Admit the low-priority task first; the high-priority task, admitted
	// second, must still be selected before it at the next scheduling
	// point because priority ordering, not admission order, governs
	// selection.
	require.NoError(t, sched.AddTask(&low))
	require.NoError(t, sched.AddTask(&high))

	pumpUntil(t, main, 5*time.Second, func() bool {
		return low.State() == StateEnd && high.State() == StateEnd
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, trace, 2)
	assert.Equal(t, "high", trace[0])
	assert.Equal(t, "low", trace[1])
}

func TestScheduler_Stop_RetiresTaskWithoutRunningFurther(t *testing.T) {
	sched := newTestScheduler(t)
	main, err := InitMainTask(0)
	require.NoError(t, err)
	require.NoError(t, sched.Init(main))

	var runs int
	var worker Task
	require.NoError(t, InitTask(&worker, 1, func(any) {
		for {
			runs++
			worker.Yield()
		}
	}, nil))
	require.NoError(t, sched.AddTask(&worker))

	pumpUntil(t, main, 5*time.Second, func() bool { return runs > 0 })

	require.NoError(t, sched.Stop(&worker))

	pumpUntil(t, main, 5*time.Second, func() bool { return worker.State() == StateEnd })

	observed := runs
	// A few more scheduling rounds must not let the stopped task run again.
	for i := 0; i < 10; i++ {
		main.Yield()
	}
	assert.Equal(t, observed, runs)
}

func TestScheduler_ResumeQD_WakesSuspendedTask(t *testing.T) {
	sched := newTestScheduler(t)
	main, err := InitMainTask(0)
	require.NoError(t, err)
	require.NoError(t, sched.Init(main))

	var suspending, resumed bool
	var worker Task
	require.NoError(t, InitTask(&worker, 1, func(any) {
		suspending = true
		worker.Suspend()
		resumed = true
	}, nil))
	require.NoError(t, sched.AddTask(&worker))

	// InitTask already leaves the worker in StateSuspend, so also wait for
	// the worker itself to have run up to its Suspend call.
	pumpUntil(t, main, 5*time.Second, func() bool { return suspending && worker.State() == StateSuspend })

	require.NoError(t, sched.ResumeQD(&worker))

	pumpUntil(t, main, 5*time.Second, func() bool { return worker.State() == StateEnd })
	assert.True(t, resumed)
}

func TestScheduler_Tick_WakesSleepingTask(t *testing.T) {
	sched := newTestScheduler(t)
	main, err := InitMainTask(0)
	require.NoError(t, err)
	require.NoError(t, sched.Init(main))

	var worker Task
	require.NoError(t, InitTask(&worker, 1, func(any) {
		worker.SleepMS(10)
	}, nil))
	require.NoError(t, sched.AddTask(&worker))

	pumpUntil(t, main, 5*time.Second, func() bool { return worker.State() == StateSleep })

	woken := sched.Tick(10)
	assert.Equal(t, uint32(1), woken)

	pumpUntil(t, main, 5*time.Second, func() bool { return worker.State() == StateEnd })
}

func TestScheduler_AddTask_RejectsDuplicatePrioritySlot(t *testing.T) {
	sched := newTestScheduler(t)
	main, err := InitMainTask(0)
	require.NoError(t, err)
	require.NoError(t, sched.Init(main))

	var a, b Task
	require.NoError(t, InitTask(&a, 2, func(any) {}, nil))
	require.NoError(t, InitTask(&b, 2, func(any) {}, nil))

	require.NoError(t, sched.AddTask(&a))
	err = sched.AddTask(&b)
	require.Error(t, err)
	assert.True(t, IsCode(err, EALREADY))
}

func TestScheduler_Stats_TracksYields(t *testing.T) {
	sched := newTestScheduler(t)
	main, err := InitMainTask(0)
	require.NoError(t, err)
	require.NoError(t, sched.Init(main))

	main.Yield()
	main.Yield()

	yields, _, err := sched.Stats(MainTaskID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, yields, uint64(2))
}

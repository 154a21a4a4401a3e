package jrtos

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScheduler_ResumeQD_ConcurrentProducers_NoLostWakeups hammers
// ResumeQD from many concurrent "interrupt" goroutines against a single
// task that suspends itself repeatedly, and checks the task completes
// every one of its suspend/resume rounds. ResumeQD posts through the
// shared interrupt-resume ring; a resume that lands while the task is
// still ACTIVE, or that finds the ring full, is absorbed, so producers
// keep posting until all rounds are done.
func TestScheduler_ResumeQD_ConcurrentProducers_NoLostWakeups(t *testing.T) {
	sched := newTestScheduler(t)
	main, err := InitMainTask(0)
	require.NoError(t, err)
	require.NoError(t, sched.Init(main))

	const rounds = 500
	var resumes atomic.Int64
	var worker Task
	require.NoError(t, InitTask(&worker, 1, func(any) {
		for i := 0; i < rounds; i++ {
			worker.Suspend()
			resumes.Add(1)
		}
	}, nil))
	require.NoError(t, sched.AddTask(&worker))

	const producers = 8
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for resumes.Load() < rounds {
				_ = sched.ResumeQD(&worker)
				time.Sleep(time.Microsecond)
			}
		}()
	}

	pumpUntil(t, main, 20*time.Second, func() bool { return worker.State() == StateEnd })
	wg.Wait()
	assert.Equal(t, int64(rounds), resumes.Load())
}

// TestScheduler_SignalQD_ConcurrentProducers_FIFOSurvives fires SignalQD
// from many concurrent goroutines while a consumer task repeatedly waits,
// and checks the event counter absorbs exactly as many signals as waits
// can consume - no duplication, no loss - matching the saturating-counter
// design in wait.go.
func TestScheduler_SignalQD_ConcurrentProducers_FIFOSurvives(t *testing.T) {
	sched := newTestScheduler(t)
	main, err := InitMainTask(0)
	require.NoError(t, err)
	require.NoError(t, sched.Init(main))

	w := NewWait(sched)

	const signals = 300
	var consumed atomic.Int64
	var consumer Task
	require.NoError(t, InitTask(&consumer, 1, func(any) {
		for i := 0; i < signals; i++ {
			consumer.Wait(w)
			consumed.Add(1)
		}
	}, nil))
	require.NoError(t, sched.AddTask(&consumer))

	var sent atomic.Int64
	const producers = 6
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for {
				if sent.Add(1) > signals {
					return
				}
				// A full wait-wake-up ring rejects the post with ENOMEM;
				// the producer retries until the signal is accepted.
				for {
					err := w.SignalQD()
					if err == nil {
						break
					}
					require.True(t, IsCode(err, ENOMEM))
					time.Sleep(time.Microsecond)
				}
			}
		}()
	}

	pumpUntil(t, main, 20*time.Second, func() bool { return consumer.State() == StateEnd })
	wg.Wait()
	assert.Equal(t, int64(signals), consumed.Load())
}

// TestScheduler_Tick_ConcurrentWithResumeQD_NoPanic drives the two
// interrupt-context entry points (the periodic tick and a device resume)
// concurrently against a pool of sleeping/suspended tasks, checking the
// scheduler-loop never observes an inconsistent table - only that every
// task eventually reaches END.
func TestScheduler_Tick_ConcurrentWithResumeQD_NoPanic(t *testing.T) {
	sched := newTestScheduler(t)
	main, err := InitMainTask(0)
	require.NoError(t, err)
	require.NoError(t, sched.Init(main))

	var sleepers [3]Task
	var suspenders [3]Task
	for i := range sleepers {
		i := i
		require.NoError(t, InitTask(&sleepers[i], uint8(i+1), func(any) {
			sleepers[i].SleepMS(5)
		}, nil))
		require.NoError(t, sched.AddTask(&sleepers[i]))
	}
	for i := range suspenders {
		i := i
		require.NoError(t, InitTask(&suspenders[i], uint8(i+4), func(any) {
			suspenders[i].Suspend()
		}, nil))
		require.NoError(t, sched.AddTask(&suspenders[i]))
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				sched.Tick(1)
				time.Sleep(time.Millisecond)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				for i := range suspenders {
					_ = sched.ResumeQD(&suspenders[i])
				}
				time.Sleep(time.Millisecond)
			}
		}
	}()

	pumpUntil(t, main, 20*time.Second, func() bool {
		for i := range sleepers {
			if sleepers[i].State() != StateEnd {
				return false
			}
		}
		for i := range suspenders {
			if suspenders[i].State() != StateEnd {
				return false
			}
		}
		return true
	})

	close(stop)
	wg.Wait()
}

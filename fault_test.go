package jrtos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScheduler_GuardBandFault_RetiresOffendingTask exercises end-to-end
// scenario 5: a task runs normally for N suspension points, then its
// guard canary is corrupted (standing in for a write one word past the
// MPU guard-band on real hardware); checkGuard detects this at the very
// next suspension point and routes it through the fault handler, which
// by default retires only the offending task rather than halting.
func TestScheduler_GuardBandFault_RetiresOffendingTask(t *testing.T) {
	var faulted *Task
	sched, err := NewScheduler(
		WithIdleFunc(func() { time.Sleep(time.Millisecond) }),
		WithFaultHandler(func(ft *Task) { faulted = ft }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Close() })

	main, err := InitMainTask(0)
	require.NoError(t, err)
	require.NoError(t, sched.Init(main))

	const goodYields = 3
	completedGoodYields := 0
	var worker Task
	require.NoError(t, InitTask(&worker, 1, func(any) {
		for i := 0; i < goodYields; i++ {
			worker.Yield()
			completedGoodYields++
		}
		// Simulate the offending write one word past the guard-band: on
		// real hardware this is an out-of-bounds store the MPU catches;
		// here it is corrupting the software canary checkGuard verifies
		// at the next suspension point.
		worker.guardCanary ^= 0xFFFFFFFF
		worker.Yield()
		completedGoodYields++ // unreachable: fault forces retirement first
	}, nil))
	require.NoError(t, sched.AddTask(&worker))

	pumpUntil(t, main, 5*time.Second, func() bool { return worker.State() == StateEnd })

	assert.Equal(t, goodYields, completedGoodYields)
	require.NotNil(t, faulted)
	assert.Same(t, &worker, faulted)
}

package jrtos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphore_TryWait_Succeeds_WhenPositive(t *testing.T) {
	sem := NewSemaphore(nil, 2)
	require.NoError(t, sem.TryWait())
	assert.Equal(t, int32(1), sem.value.Load())
}

func TestSemaphore_TryWait_Fails_WhenZero(t *testing.T) {
	sem := NewSemaphore(nil, 0)
	err := sem.TryWait()
	require.Error(t, err)
	assert.True(t, IsCode(err, EAGAIN))
	assert.Equal(t, int32(0), sem.value.Load())
}

func TestSemaphore_SignalQD_AboveZero_NeverSignalsWait(t *testing.T) {
	sem := NewSemaphore(nil, 0)
	require.NoError(t, sem.SignalQD())
	assert.Equal(t, int32(1), sem.value.Load())
	assert.False(t, sem.wait.hasWaiter())
	assert.Equal(t, uint32(0), sem.wait.counter.Load())
}

func TestSemaphore_Signal_NoWaiters_NeverTouchesWaitFIFO(t *testing.T) {
	sem := NewSemaphore(nil, 0)
	// value goes 0 -> 1: a permit became available but nothing is queued,
	// so Signal must not touch the Wait's (nil-scheduler) blocking path.
	require.NoError(t, sem.Signal())
	assert.Equal(t, int32(1), sem.value.Load())
}

package jrtos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_SignalBeforeWaiters_IncrementsCounter(t *testing.T) {
	w := NewWait(nil)
	assert.False(t, w.hasWaiter())

	woken, err := w.signalLocked()
	require.NoError(t, err)
	assert.Nil(t, woken)
	assert.Equal(t, uint32(1), w.counter.Load())
}

func TestWait_AdmitOrEnqueue_ConsumesOutstandingEvent(t *testing.T) {
	w := NewWait(nil)
	w.counter.Store(1)

	task := &Task{}
	admitted := w.admitOrEnqueue(task)
	assert.True(t, admitted)
	assert.Equal(t, uint32(0), w.counter.Load())
	assert.False(t, w.hasWaiter())
}

func TestWait_AdmitOrEnqueue_QueuesWhenNoEvent(t *testing.T) {
	w := NewWait(nil)
	task := &Task{}

	admitted := w.admitOrEnqueue(task)
	assert.False(t, admitted)
	assert.True(t, w.hasWaiter())
	assert.Same(t, task, w.last)
	assert.Same(t, task, task.next)
}

func TestWait_FIFOOrder(t *testing.T) {
	w := NewWait(nil)
	a := &Task{}
	b := &Task{}
	c := &Task{}

	require.False(t, w.admitOrEnqueue(a))
	require.False(t, w.admitOrEnqueue(b))
	require.False(t, w.admitOrEnqueue(c))

	woken, err := w.signalLocked()
	require.NoError(t, err)
	assert.Same(t, a, woken)

	woken, err = w.signalLocked()
	require.NoError(t, err)
	assert.Same(t, b, woken)

	woken, err = w.signalLocked()
	require.NoError(t, err)
	assert.Same(t, c, woken)

	assert.False(t, w.hasWaiter())
}

func TestWait_CounterSaturation(t *testing.T) {
	w := NewWait(nil)
	w.counter.Store(counterSaturation)

	woken, err := w.signalLocked()
	assert.Nil(t, woken)
	require.Error(t, err)
	assert.True(t, IsCode(err, ENOMEM))
	assert.Equal(t, uint32(counterSaturation), w.counter.Load())
}

func TestWait_Unchain_Head(t *testing.T) {
	w := NewWait(nil)
	a := &Task{}
	b := &Task{}
	require.False(t, w.admitOrEnqueue(a))
	require.False(t, w.admitOrEnqueue(b))

	w.unchain(a)

	woken, err := w.signalLocked()
	require.NoError(t, err)
	assert.Same(t, b, woken)
}

func TestWait_Unchain_Middle(t *testing.T) {
	w := NewWait(nil)
	a := &Task{}
	b := &Task{}
	c := &Task{}
	require.False(t, w.admitOrEnqueue(a))
	require.False(t, w.admitOrEnqueue(b))
	require.False(t, w.admitOrEnqueue(c))

	w.unchain(b)

	woken, err := w.signalLocked()
	require.NoError(t, err)
	assert.Same(t, a, woken)

	woken, err = w.signalLocked()
	require.NoError(t, err)
	assert.Same(t, c, woken)

	assert.False(t, w.hasWaiter())
}

func TestWait_Unchain_SoleEntry(t *testing.T) {
	w := NewWait(nil)
	a := &Task{}
	require.False(t, w.admitOrEnqueue(a))

	w.unchain(a)

	assert.False(t, w.hasWaiter())
}

func TestWait_Unchain_NotQueued_NoOp(t *testing.T) {
	w := NewWait(nil)
	a := &Task{}
	b := &Task{}
	require.False(t, w.admitOrEnqueue(a))

	w.unchain(b)

	assert.True(t, w.hasWaiter())
	assert.Same(t, a, w.last)
}

func TestWait_Unchain_EmptyFIFO_NoOp(t *testing.T) {
	w := NewWait(nil)
	assert.NotPanics(t, func() { w.unchain(&Task{}) })
}

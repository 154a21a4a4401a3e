package jrtos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTask_RejectsBadInput(t *testing.T) {
	var task Task
	err := InitTask(&task, 8, func(any) {}, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, EINVAL))

	err = InitTask(&task, 0, nil, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, EINVAL))
}

func TestInitTask_SetsUpLifecycleFields(t *testing.T) {
	var task Task
	require.NoError(t, InitTask(&task, 3, func(any) {}, "arg"))

	assert.Equal(t, uint8(3), task.Priority)
	assert.Equal(t, uint32(1)<<(31-3), task.PrioBit)
	assert.Equal(t, StateSuspend, task.State())
	assert.Equal(t, uint32(guardCanaryValue), task.guardCanary)
	assert.NotNil(t, task.runCh)
	assert.NotNil(t, task.doneCh)
	assert.NotNil(t, task.resumeRing)
}

func TestInitMainTask_RejectsBadPriority(t *testing.T) {
	_, err := InitMainTask(maxPriority + 1)
	require.Error(t, err)
	assert.True(t, IsCode(err, EINVAL))
}

func TestInitMainTask_LeavesIDForInit(t *testing.T) {
	task, err := InitMainTask(0)
	require.NoError(t, err)
	assert.Equal(t, StateSuspend, task.State())
	// ID is assigned by Scheduler.Init, not InitMainTask itself.
	assert.Equal(t, uint8(0), task.ID)
}

func TestState_Resumable(t *testing.T) {
	assert.True(t, StateActive.resumable())
	assert.True(t, StateSleep.resumable())
	assert.True(t, StateSuspend.resumable())
	assert.False(t, StateWaitFor.resumable())
	assert.False(t, StateEnd.resumable())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Active", StateActive.String())
	assert.Equal(t, "End", StateEnd.String())
	assert.Equal(t, "Unknown", State(99).String())
}

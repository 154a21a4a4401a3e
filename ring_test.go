package jrtos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_WriteRead_FIFO(t *testing.T) {
	r := newRing[int](4)
	require.False(t, r.hasData())

	for i := 1; i <= 4; i++ {
		require.NoError(t, r.write("test", i))
	}
	assert.Equal(t, 4, r.depth())

	err := r.write("test", 99)
	require.Error(t, err)
	assert.True(t, IsCode(err, ENOMEM))

	for i := 1; i <= 4; i++ {
		require.True(t, r.hasData())
		assert.Equal(t, i, r.read())
	}
	assert.False(t, r.hasData())
	assert.Equal(t, 0, r.depth())
}

func TestRing_WrapAround(t *testing.T) {
	r := newRing[int](2)
	require.NoError(t, r.write("test", 1))
	assert.Equal(t, 1, r.read())
	require.NoError(t, r.write("test", 2))
	require.NoError(t, r.write("test", 3))
	assert.Equal(t, 2, r.read())
	assert.Equal(t, 3, r.read())
	assert.False(t, r.hasData())
}

func TestRing_CapacityMustBePowerOfTwo(t *testing.T) {
	assert.Panics(t, func() { newRing[int](3) })
	assert.Panics(t, func() { newRing[int](0) })
	assert.NotPanics(t, func() { newRing[int](8) })
}

func TestRing_Linked(t *testing.T) {
	r := newRing[int](4)
	assert.False(t, r.linked)
	r.linked = true
	assert.True(t, r.linked)
}

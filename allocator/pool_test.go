package allocator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpualloc/allocsim/allocator"
)

func TestPool_FindFit_CeilingAndSmallestSegmentTieBreak(t *testing.T) {
	p := allocator.NewPool()

	p.Insert(5, 100)
	p.Insert(2, 100)
	p.Insert(3, 200)

	seg, size, ok := p.FindFit(50)
	require.True(t, ok)
	require.Equal(t, uint64(100), size)
	require.Equal(t, allocator.SegmentID(2), seg, "tie on size 100 must prefer smallest segment id")

	seg, size, ok = p.FindFit(150)
	require.True(t, ok)
	require.Equal(t, uint64(200), size)
	require.Equal(t, allocator.SegmentID(3), seg)

	_, _, ok = p.FindFit(201)
	require.False(t, ok)
}

func TestPool_RemoveMissingIsInvariantViolation(t *testing.T) {
	p := allocator.NewPool()

	err := p.Remove(1, 100)
	require.Error(t, err)
	require.True(t, allocator.IsInvariantViolation(err))
}

func TestPool_InsertRemove_RoundTrip(t *testing.T) {
	p := allocator.NewPool()

	p.Insert(1, 64)
	require.Equal(t, 1, p.Count(1, 64))

	require.NoError(t, p.Remove(1, 64))
	require.Equal(t, 0, p.Count(1, 64))

	_, _, ok := p.FindFit(1)
	require.False(t, ok)
}

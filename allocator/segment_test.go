package allocator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpualloc/allocsim/allocator"
)

func TestSegmentTable_CreateSegment_SingleInitialBlock(t *testing.T) {
	tbl := allocator.NewSegmentTable()

	id := tbl.CreateSegment(1024, allocator.Free())

	seg, ok := tbl.Segment(id)
	require.True(t, ok)
	require.Len(t, seg.Blocks(), 1)
	require.Equal(t, uint64(1024), seg.Blocks()[0].Size())
}

func TestSegmentTable_Replace_Split(t *testing.T) {
	tbl := allocator.NewSegmentTable()
	id := tbl.CreateSegment(1000, allocator.Free())

	err := tbl.Replace(id, 0, 1000, []allocator.Block{
		{Start: 0, End: 400, Liveness: allocator.LiveUntil(5)},
		{Start: 400, End: 1000, Liveness: allocator.Free()},
	})
	require.NoError(t, err)

	seg, _ := tbl.Segment(id)
	blocks := seg.Blocks()
	require.Len(t, blocks, 2)
	require.Equal(t, uint64(400), blocks[0].Size())
	require.Equal(t, uint64(600), blocks[1].Size())
}

func TestSegmentTable_Replace_CoalesceThreeIntoOne(t *testing.T) {
	tbl := allocator.NewSegmentTable()
	id := tbl.CreateSegment(900, allocator.Free())

	require.NoError(t, tbl.Replace(id, 0, 900, []allocator.Block{
		{Start: 0, End: 300, Liveness: allocator.Free()},
		{Start: 300, End: 600, Liveness: allocator.LiveUntil(1)},
		{Start: 600, End: 900, Liveness: allocator.Free()},
	}))

	require.NoError(t, tbl.Replace(id, 0, 900, []allocator.Block{
		{Start: 0, End: 900, Liveness: allocator.Free()},
	}))

	seg, _ := tbl.Segment(id)
	blocks := seg.Blocks()
	require.Len(t, blocks, 1)
	require.Equal(t, uint64(900), blocks[0].Size())
}

func TestSegmentTable_FindBlock_MissingIsInvariantViolation(t *testing.T) {
	tbl := allocator.NewSegmentTable()
	id := tbl.CreateSegment(100, allocator.Free())

	_, err := tbl.FindBlock(id, 50, 10)
	require.Error(t, err)
	require.True(t, allocator.IsInvariantViolation(err))
}

func TestSegmentTable_PredecessorSuccessorFree(t *testing.T) {
	tbl := allocator.NewSegmentTable()
	id := tbl.CreateSegment(900, allocator.Free())

	require.NoError(t, tbl.Replace(id, 0, 900, []allocator.Block{
		{Start: 0, End: 300, Liveness: allocator.Free()},
		{Start: 300, End: 600, Liveness: allocator.LiveUntil(1)},
		{Start: 600, End: 900, Liveness: allocator.Free()},
	}))

	pred, ok := tbl.FindPredecessorFree(id, 300)
	require.True(t, ok)
	require.EqualValues(t, 0, pred.Start)

	succ, ok := tbl.FindSuccessorFree(id, 600)
	require.True(t, ok)
	require.EqualValues(t, 600, succ.Start)

	_, ok = tbl.FindPredecessorFree(id, 0)
	require.False(t, ok)
}

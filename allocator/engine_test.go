package allocator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpualloc/allocsim/allocator"
)

type roundUpPolicy struct{ quantum uint64 }

func (p roundUpPolicy) AllocationSize(size uint64) uint64 {
	if size%p.quantum == 0 {
		return size
	}

	return (size/p.quantum + 1) * p.quantum
}

func newEngine(quantum uint64) *allocator.Engine {
	return allocator.New(roundUpPolicy{quantum: quantum}, allocator.WithInvariantChecks())
}

func TestMalloc_LoneAllocationReservesExactlyOneSegment(t *testing.T) {
	e := newEngine(allocator.KRoundLarge)

	seg, start, size, err := e.Malloc(1<<20, 10)
	require.NoError(t, err)
	require.EqualValues(t, 0, start)
	require.Equal(t, uint64(allocator.KRoundLarge), size)
	require.Equal(t, 1, e.SegmentCount())
	require.Equal(t, allocator.KRoundLarge, int(e.MaxReservedSize()))
	require.NotZero(t, seg)
}

func TestFree_ThenMalloc_ReusesWithoutSplit(t *testing.T) {
	e := newEngine(allocator.KRoundLarge)

	seg, start, size, err := e.Malloc(allocator.KRoundLarge, 10)
	require.NoError(t, err)

	require.NoError(t, e.Free(seg, start, size))
	require.Equal(t, 1, e.SegmentCount())

	seg2, start2, size2, err := e.Malloc(allocator.KRoundLarge, 20)
	require.NoError(t, err)
	require.Equal(t, seg, seg2)
	require.Equal(t, start, start2)
	require.Equal(t, size, size2)
	require.Equal(t, 1, e.SegmentCount(), "reuse must not reserve a new segment")
}

func TestFree_ThenSmallerMalloc_SplitsWhenRemainderExceedsThreshold(t *testing.T) {
	e := newEngine(1)

	big := uint64(allocator.KLargeBuffer) + (2 << 20)

	seg, start, size, err := e.Malloc(big, 10)
	require.NoError(t, err)
	require.NoError(t, e.Free(seg, start, size))

	small := uint64(1 << 20)

	seg2, start2, smallSize, err := e.Malloc(small, 20)
	require.NoError(t, err)
	require.Equal(t, seg, seg2)
	require.EqualValues(t, 0, start2)
	require.Equal(t, small, smallSize, "split malloc must return the requested size, not the block size")

	blocks := mustSegment(t, e, seg).Blocks()
	require.Len(t, blocks, 2)
	require.False(t, blocks[1].Liveness.Live)
	require.Equal(t, big-small, blocks[1].Size())
}

func TestFree_ThenSmallerMalloc_NoSplitAtOrBelowThreshold(t *testing.T) {
	e := newEngine(1)

	blockSize := uint64(allocator.KLargeBuffer) + 100

	seg, start, size, err := e.Malloc(blockSize, 10)
	require.NoError(t, err)
	require.NoError(t, e.Free(seg, start, size))

	// remainder would be exactly KLargeBuffer: not a split (strict >).
	req := blockSize - uint64(allocator.KLargeBuffer)

	_, _, gotSize, err := e.Malloc(req, 20)
	require.NoError(t, err)
	require.Equal(t, blockSize, gotSize, "remainder == threshold must not split")

	blocks := mustSegment(t, e, seg).Blocks()
	require.Len(t, blocks, 1)
}

func TestMalloc_GrowsWithNewSegmentWhenNoFreeBlockFits(t *testing.T) {
	e := newEngine(allocator.KRoundLarge)

	_, _, _, err := e.Malloc(allocator.KRoundLarge, 10)
	require.NoError(t, err)

	_, _, _, err = e.Malloc(allocator.KRoundLarge, 20)
	require.NoError(t, err)

	require.Equal(t, 2, e.SegmentCount())
}

type fixedSizePolicy struct{ size uint64 }

func (p fixedSizePolicy) AllocationSize(uint64) uint64 { return p.size }

func TestMalloc_SplitsRemainderOfFreshSegmentWhenPolicyOverAllocates(t *testing.T) {
	fixed := uint64(64 << 20) // 64 MiB segments, far larger than any single request below.
	e := allocator.New(fixedSizePolicy{size: fixed}, allocator.WithInvariantChecks())

	small := uint64(1 << 20)

	seg, start, size, err := e.Malloc(small, 10)
	require.NoError(t, err)
	require.EqualValues(t, 0, start)
	require.Equal(t, small, size, "remainder exceeds the split threshold, so malloc must return the requested size, not the inflated segment size")
	require.Equal(t, 1, e.SegmentCount())

	blocks := mustSegment(t, e, seg).Blocks()
	require.Len(t, blocks, 2, "the unused remainder of the oversized new segment must be split off, not left live")
	require.False(t, blocks[1].Liveness.Live)
	require.Equal(t, fixed-small, blocks[1].Size())

	// The split-off remainder must be reusable by a second, unrelated
	// allocation without reserving another segment.
	seg2, _, size2, err := e.Malloc(fixed-small, 20)
	require.NoError(t, err)
	require.Equal(t, seg, seg2)
	require.Equal(t, fixed-small, size2)
	require.Equal(t, 1, e.SegmentCount())
}

func TestFree_CoalescesWithBothNeighbors(t *testing.T) {
	e := newEngine(1)

	segSize := uint64(3 * (allocator.KLargeBuffer + 1))

	seg, start, size, err := e.Malloc(segSize, 10)
	require.NoError(t, err)
	require.NoError(t, e.Free(seg, start, size))

	part := uint64(allocator.KLargeBuffer + 1)

	segA, startA, sizeA, err := e.Malloc(part, 10)
	require.NoError(t, err)
	require.Equal(t, seg, segA)

	segB, startB, sizeB, err := e.Malloc(part, 10)
	require.NoError(t, err)

	segC, startC, sizeC, err := e.Malloc(part, 10)
	require.NoError(t, err)

	require.NoError(t, e.Free(segA, startA, sizeA))
	require.NoError(t, e.Free(segC, startC, sizeC))
	require.NoError(t, e.Free(segB, startB, sizeB))

	blocks := mustSegment(t, e, seg).Blocks()
	require.Len(t, blocks, 1, "freeing all three parts must coalesce back into a single block")
	require.False(t, blocks[0].Liveness.Live)
	require.Equal(t, segSize, blocks[0].Size())
}

func TestMalloc_DeterministicTieBreakBySmallestSegmentID(t *testing.T) {
	e := newEngine(1)

	size := uint64(10 << 20)

	seg1, start1, eff1, err := e.Malloc(size, 10)
	require.NoError(t, err)

	seg2, start2, eff2, err := e.Malloc(size, 10)
	require.NoError(t, err)
	require.NotEqual(t, seg1, seg2, "both blocks are live, so the second malloc must reserve a second segment")

	// Free the newer segment first so insertion order does not favor seg1.
	require.NoError(t, e.Free(seg2, start2, eff2))
	require.NoError(t, e.Free(seg1, start1, eff1))

	seg3, _, _, err := e.Malloc(size, 20)
	require.NoError(t, err)
	require.Equal(t, seg1, seg3, "two equal-size segments: reuse must prefer the smaller segment id")
}

func TestMalloc_OOMWhenCapacityExhausted(t *testing.T) {
	e := allocator.New(roundUpPolicy{quantum: 1}, allocator.WithMaxCapacity(10<<20))

	_, _, _, err := e.Malloc(10<<20, 10)
	require.NoError(t, err)

	_, _, _, err = e.Malloc(1, 20)
	require.ErrorIs(t, err, allocator.ErrOOM)
}

func TestFree_DoubleFreeIsInvariantViolation(t *testing.T) {
	e := newEngine(1)

	seg, start, size, err := e.Malloc(1<<20, 10)
	require.NoError(t, err)
	require.NoError(t, e.Free(seg, start, size))

	err = e.Free(seg, start, size)
	require.Error(t, err)
	require.True(t, allocator.IsInvariantViolation(err))
}

func mustSegment(t *testing.T, e *allocator.Engine, id allocator.SegmentID) *allocator.Segment {
	t.Helper()

	seg, ok := e.Table().Segment(id)
	require.True(t, ok)

	return seg
}

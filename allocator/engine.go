// Package allocator implements the coalescing/splitting caching allocator
// being simulated: segment and block bookkeeping, best-fit free-block
// selection, splitting on malloc, and neighbor coalescing on free.
package allocator

import (
	"github.com/gpualloc/allocsim/internal/metrics"
	"github.com/gpualloc/allocsim/repo/logging"
)

var log = logging.Module("allocsim/allocator")

const (
	// KLargeBuffer is the split threshold: a free block is split on malloc
	// only when the unused remainder would strictly exceed this many bytes.
	KLargeBuffer = 20 << 20 // 20 MiB

	// KRoundLarge is the rounding quantum used by the round-up size policy.
	KRoundLarge = 2 << 20 // 2 MiB

	// KSmallSize is reserved for a future small-tier split rule; should_split
	// does not consult it today (see design notes).
	KSmallSize = 1 << 20 // 1 MiB
)

// SizePolicy maps a requested size to the reservation size used when the
// engine must reserve a new segment.
type SizePolicy interface {
	AllocationSize(size uint64) uint64
}

type engineMetrics struct {
	segmentsCreated *metrics.Counter
	bytesReserved   *metrics.Counter
	poolHits        *metrics.Counter
	poolMisses      *metrics.Counter
	splits          *metrics.Counter
	coalesces       *metrics.Counter
}

// Engine implements Malloc/Free over a SegmentTable and Pool, with the
// split/coalesce rules of the caching allocator being simulated.
type Engine struct {
	policy SizePolicy
	table  *SegmentTable
	pool   *Pool

	checkInvariants bool
	maxCapacity     uint64 // 0 == unbounded

	maxReservedSize uint64

	metrics engineMetrics
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithInvariantChecks enables the consistency checks of CheckInvariants
// after every Malloc/Free call. Intended for tests and debug builds; it adds
// an O(blocks-in-segment) scan per call.
func WithInvariantChecks() Option {
	return func(e *Engine) { e.checkInvariants = true }
}

// WithMetrics attaches a metrics.Registry the engine reports its counters
// to. A nil registry (the default) makes every metric update a no-op.
func WithMetrics(reg *metrics.Registry) Option {
	return func(e *Engine) {
		e.metrics = engineMetrics{
			segmentsCreated: reg.CounterInt64("segments_created", "Segments created by the allocator engine", nil),
			bytesReserved:   reg.CounterInt64("bytes_reserved", "Bytes reserved from new segments", nil),
			poolHits:        reg.CounterInt64("pool_hits", "malloc calls satisfied from the free-block pool", nil),
			poolMisses:      reg.CounterInt64("pool_misses", "malloc calls that required a new segment", nil),
			splits:          reg.CounterInt64("splits", "free blocks split on malloc", nil),
			coalesces:       reg.CounterInt64("coalesces", "blocks coalesced with a free neighbor on free", nil),
		}
	}
}

// WithMaxCapacity caps total bytes the engine will ever reserve: once
// reached, Malloc returns ErrOOM instead of creating a new segment. The
// default (0) is unbounded, matching the model where OOM is unreachable.
func WithMaxCapacity(maxBytes uint64) Option {
	return func(e *Engine) { e.maxCapacity = maxBytes }
}

// New constructs an Engine that reserves new segments via policy.
func New(policy SizePolicy, opts ...Option) *Engine {
	e := &Engine{
		policy: policy,
		table:  NewSegmentTable(),
		pool:   NewPool(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// MaxReservedSize returns the monotonically non-decreasing total of every
// segment capacity ever created.
func (e *Engine) MaxReservedSize() uint64 { return e.maxReservedSize }

// SegmentCount returns the current number of segments.
func (e *Engine) SegmentCount() int { return e.table.Count() }

// Table exposes the underlying segment table for inspection (reports,
// tests). Callers must not mutate segments directly.
func (e *Engine) Table() *SegmentTable { return e.table }

func shouldSplit(size, blockSize uint64) bool {
	return blockSize-size > KLargeBuffer
}

// Malloc satisfies a size-byte allocation due to expire at tick die, either
// by reusing a cached free block (best fit) or by reserving a new segment.
// It returns the block's segment, start offset, and effective size (the
// inflated found size when no split occurred, or size itself when it did —
// the caller must pass effective size back to Free).
func (e *Engine) Malloc(size uint64, die int64) (SegmentID, uint64, uint64, error) {
	seg, foundSize, hit := e.pool.FindFit(size)

	if !hit {
		// The original source retries get_free_block once here before
		// falling back to a new segment; the pool cannot have changed
		// between the two calls, so this is a literal no-op, preserved for
		// fidelity rather than because it does anything.
		seg, foundSize, hit = e.pool.FindFit(size)
	}

	if !hit {
		return e.mallocMiss(size, die)
	}

	return e.mallocHit(seg, foundSize, size, die)
}

func (e *Engine) mallocMiss(size uint64, die int64) (SegmentID, uint64, uint64, error) {
	allocSize := e.policy.AllocationSize(size)

	if e.maxCapacity != 0 && e.maxReservedSize+allocSize > e.maxCapacity {
		log.Debugw("simulated OOM", "requested", size, "wouldReserve", allocSize, "maxCapacity", e.maxCapacity)
		return 0, 0, 0, ErrOOM
	}

	segID := e.table.CreateSegment(allocSize, LiveUntil(die))
	e.maxReservedSize += allocSize

	e.metrics.poolMisses.Add(1)
	e.metrics.segmentsCreated.Add(1)
	e.metrics.bytesReserved.Add(int64(allocSize)) //nolint:gosec

	effective := allocSize

	if shouldSplit(size, allocSize) {
		if err := e.splitBlock(segID, 0, size, allocSize, die); err != nil {
			return 0, 0, 0, err
		}

		effective = size
		e.metrics.splits.Add(1)
	}

	if err := e.verify("malloc", segID); err != nil {
		return 0, 0, 0, err
	}

	return segID, 0, effective, nil
}

func (e *Engine) mallocHit(seg SegmentID, foundSize, size uint64, die int64) (SegmentID, uint64, uint64, error) {
	block, ok := e.table.FindFreeBlockOfSize(seg, foundSize)
	if !ok {
		return 0, 0, 0, &InvariantError{Op: "malloc", SegmentID: seg, Size: foundSize, Reason: "pool entry has no matching free block in segment table"}
	}

	if err := e.pool.Remove(seg, foundSize); err != nil {
		return 0, 0, 0, err
	}

	e.metrics.poolHits.Add(1)

	effective := foundSize

	if shouldSplit(size, foundSize) {
		if err := e.splitBlock(seg, block.Start, size, foundSize, die); err != nil {
			return 0, 0, 0, err
		}

		effective = size
		e.metrics.splits.Add(1)
	} else if err := e.table.SetLiveness(seg, block.Start, foundSize, LiveUntil(die)); err != nil {
		return 0, 0, 0, err
	}

	if err := e.verify("malloc", seg); err != nil {
		return 0, 0, 0, err
	}

	return seg, block.Start, effective, nil
}

func (e *Engine) splitBlock(seg SegmentID, start, liveSize, blockSize uint64, die int64) error {
	live := Block{Start: start, End: start + liveSize, Liveness: LiveUntil(die)}
	remainder := Block{Start: start + liveSize, End: start + blockSize, Liveness: Free()}

	if err := e.table.Replace(seg, start, start+blockSize, []Block{live, remainder}); err != nil {
		return err
	}

	e.pool.Insert(seg, remainder.Size())

	return nil
}

// Free returns the block [start, start+size) in segment to the pool,
// coalescing with a free predecessor and/or successor if either exists.
func (e *Engine) Free(segID SegmentID, start, size uint64) error {
	target, err := e.table.FindBlock(segID, start, size)
	if err != nil {
		return err
	}

	if !target.Liveness.Live {
		return &InvariantError{Op: "free", SegmentID: segID, Start: start, Size: size, Reason: "target block is already free"}
	}

	pred, hasPred := e.table.FindPredecessorFree(segID, start)
	succ, hasSucc := e.table.FindSuccessorFree(segID, start+size)

	if !hasPred && !hasSucc {
		if err := e.table.SetLiveness(segID, start, size, Free()); err != nil {
			return err
		}

		e.pool.Insert(segID, size)

		return e.verify("free", segID)
	}

	spanStart, spanEnd := start, start+size

	if hasPred {
		if err := e.pool.Remove(segID, pred.Size()); err != nil {
			return err
		}

		spanStart = pred.Start
	}

	if hasSucc {
		if err := e.pool.Remove(segID, succ.Size()); err != nil {
			return err
		}

		spanEnd = succ.End
	}

	merged := Block{Start: spanStart, End: spanEnd, Liveness: Free()}
	if err := e.table.Replace(segID, spanStart, spanEnd, []Block{merged}); err != nil {
		return err
	}

	e.pool.Insert(segID, merged.Size())
	e.metrics.coalesces.Add(1)

	return e.verify("free", segID)
}

func (e *Engine) verify(op string, seg SegmentID) error {
	if !e.checkInvariants {
		return nil
	}

	if err := e.checkSegment(seg); err != nil {
		log.Errorw("invariant violation", "op", op, "segment", seg, "error", err)
		return err
	}

	return nil
}

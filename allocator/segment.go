package allocator

import "sort"

// SegmentID uniquely identifies a reserved segment. Ids are assigned
// monotonically and never reused.
type SegmentID uint64

// Segment is a single device reservation: a fixed Capacity tiled, without
// gaps or overlaps, by blocks kept sorted by Start.
type Segment struct {
	ID       SegmentID
	Capacity uint64
	blocks   []Block
}

// Blocks returns a defensive copy of the segment's current tiling, ordered
// by Start.
func (s *Segment) Blocks() []Block {
	out := make([]Block, len(s.blocks))
	copy(out, s.blocks)

	return out
}

// indexAtStart returns the index of the block whose Start equals start, or
// -1 if no such block exists.
func (s *Segment) indexAtStart(start uint64) int {
	i := sort.Search(len(s.blocks), func(i int) bool { return s.blocks[i].Start >= start })
	if i < len(s.blocks) && s.blocks[i].Start == start {
		return i
	}

	return -1
}

// SegmentTable is the authoritative record of every reserved segment and the
// ordered list of blocks tiling it. Segments are never removed.
type SegmentTable struct {
	order  []SegmentID
	byID   map[SegmentID]*Segment
	nextID SegmentID
}

// NewSegmentTable returns an empty SegmentTable.
func NewSegmentTable() *SegmentTable {
	return &SegmentTable{byID: map[SegmentID]*Segment{}}
}

// CreateSegment reserves a new segment of the given capacity, containing a
// single block [0, capacity) with the given initial liveness, and returns
// its assigned id.
func (t *SegmentTable) CreateSegment(capacity uint64, initial Liveness) SegmentID {
	t.nextID++
	id := t.nextID

	t.byID[id] = &Segment{
		ID:       id,
		Capacity: capacity,
		blocks:   []Block{{Start: 0, End: capacity, Liveness: initial}},
	}
	t.order = append(t.order, id)

	return id
}

// Count returns the current number of segments.
func (t *SegmentTable) Count() int {
	return len(t.byID)
}

// Segment returns the segment with the given id, if any.
func (t *SegmentTable) Segment(id SegmentID) (*Segment, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// Segments returns every segment id in creation order.
func (t *SegmentTable) Segments() []SegmentID {
	out := make([]SegmentID, len(t.order))
	copy(out, t.order)

	return out
}

// FindBlock locates the unique block whose Start and Size match, in segment
// id.
func (t *SegmentTable) FindBlock(id SegmentID, start, size uint64) (Block, error) {
	seg, ok := t.byID[id]
	if !ok {
		return Block{}, &InvariantError{Op: "find_block", SegmentID: id, Start: start, Size: size, Reason: "segment does not exist"}
	}

	idx := seg.indexAtStart(start)
	if idx == -1 || seg.blocks[idx].Size() != size {
		return Block{}, &InvariantError{Op: "find_block", SegmentID: id, Start: start, Size: size, Reason: "no block with matching start and size"}
	}

	return seg.blocks[idx], nil
}

// FindFreeBlockOfSize returns the smallest-start free block of exactly the
// given size in segment id. Used after a pool hit, where the pool names a
// (segment, size) pair but not a specific block; ties among same-sized free
// blocks in one segment (rare) are broken by smallest Start.
func (t *SegmentTable) FindFreeBlockOfSize(id SegmentID, size uint64) (Block, bool) {
	seg, ok := t.byID[id]
	if !ok {
		return Block{}, false
	}

	for _, b := range seg.blocks {
		if !b.Liveness.Live && b.Size() == size {
			return b, true
		}
	}

	return Block{}, false
}

// FindPredecessorFree returns the free block immediately preceding start in
// segment id (the block whose End == start), if any.
func (t *SegmentTable) FindPredecessorFree(id SegmentID, start uint64) (Block, bool) {
	seg, ok := t.byID[id]
	if !ok || start == 0 {
		return Block{}, false
	}

	idx := seg.indexAtStart(start)
	if idx <= 0 {
		return Block{}, false
	}

	p := seg.blocks[idx-1]
	if p.Liveness.Live {
		return Block{}, false
	}

	return p, true
}

// FindSuccessorFree returns the free block immediately following end in
// segment id (the block whose Start == end), if any.
func (t *SegmentTable) FindSuccessorFree(id SegmentID, end uint64) (Block, bool) {
	seg, ok := t.byID[id]
	if !ok {
		return Block{}, false
	}

	idx := seg.indexAtStart(end)
	if idx == -1 {
		return Block{}, false
	}

	s := seg.blocks[idx]
	if s.Liveness.Live {
		return Block{}, false
	}

	return s, true
}

// Replace substitutes the contiguous span [start, end) — which must exactly
// match the union of one or more adjacent existing blocks — with newBlocks,
// preserving the tiling invariant. Used for both split (one block becomes
// two) and coalesce (two or three blocks become one).
func (t *SegmentTable) Replace(id SegmentID, start, end uint64, newBlocks []Block) error {
	seg, ok := t.byID[id]
	if !ok {
		return &InvariantError{Op: "replace", SegmentID: id, Start: start, Size: end - start, Reason: "segment does not exist"}
	}

	lo := seg.indexAtStart(start)
	if lo == -1 {
		return &InvariantError{Op: "replace", SegmentID: id, Start: start, Reason: "no block starts at span start"}
	}

	hi := lo
	for hi < len(seg.blocks) && seg.blocks[hi].End < end {
		hi++
	}

	if hi >= len(seg.blocks) || seg.blocks[hi].End != end {
		return &InvariantError{Op: "replace", SegmentID: id, Start: start, Reason: "span end does not land on a block boundary"}
	}

	tail := append([]Block{}, seg.blocks[hi+1:]...)
	head := seg.blocks[:lo:lo]

	merged := make([]Block, 0, len(head)+len(newBlocks)+len(tail))
	merged = append(merged, head...)
	merged = append(merged, newBlocks...)
	merged = append(merged, tail...)

	seg.blocks = merged

	return nil
}

// SetLiveness updates the liveness of the unique block with the given start
// and size in segment id, in place.
func (t *SegmentTable) SetLiveness(id SegmentID, start, size uint64, liveness Liveness) error {
	seg, ok := t.byID[id]
	if !ok {
		return &InvariantError{Op: "set_liveness", SegmentID: id, Start: start, Size: size, Reason: "segment does not exist"}
	}

	idx := seg.indexAtStart(start)
	if idx == -1 || seg.blocks[idx].Size() != size {
		return &InvariantError{Op: "set_liveness", SegmentID: id, Start: start, Size: size, Reason: "no block with matching start and size"}
	}

	seg.blocks[idx].Liveness = liveness

	return nil
}

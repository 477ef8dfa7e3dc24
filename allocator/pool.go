package allocator

import "sort"

// Pool is the block pool index: a multiset of (segment, size) descriptors,
// one per free block in the segment table. It is organized as an ordered
// set of sizes, each bucketed by the segments holding a free block of that
// size, so FindFit is a single ceiling lookup over the sizes instead of a
// sort-then-scan over every free block (the re-architecture point named in
// the design notes).
type Pool struct {
	sizes   []uint64 // sorted ascending, unique
	buckets map[uint64][]SegmentID
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{buckets: map[uint64][]SegmentID{}}
}

// Insert adds a free-block descriptor for (seg, size).
func (p *Pool) Insert(seg SegmentID, size uint64) {
	bucket, existed := p.buckets[size]
	if !existed {
		i := sort.Search(len(p.sizes), func(i int) bool { return p.sizes[i] >= size })
		p.sizes = append(p.sizes, 0)
		copy(p.sizes[i+1:], p.sizes[i:])
		p.sizes[i] = size
	}

	p.buckets[size] = append(bucket, seg)
}

// Remove deletes exactly one (seg, size) descriptor. It fails with an
// *InvariantError if no such descriptor exists: a remove miss means a
// segment-table update was not paired with the corresponding pool update.
func (p *Pool) Remove(seg SegmentID, size uint64) error {
	bucket := p.buckets[size]

	idx := -1

	for i, s := range bucket {
		if s == seg {
			idx = i
			break
		}
	}

	if idx == -1 {
		return &InvariantError{Op: "pool_remove", SegmentID: seg, Size: size, Reason: "no free-block descriptor for (segment, size) in pool"}
	}

	bucket = append(bucket[:idx], bucket[idx+1:]...)

	if len(bucket) == 0 {
		delete(p.buckets, size)

		i := sort.Search(len(p.sizes), func(i int) bool { return p.sizes[i] >= size })
		p.sizes = append(p.sizes[:i], p.sizes[i+1:]...)
	} else {
		p.buckets[size] = bucket
	}

	return nil
}

// FindFit returns the descriptor with the smallest size_found >= size. Ties
// among descriptors of the same size_found are broken by smallest
// SegmentID — the deterministic tie-break this implementation documents,
// since the original source's tie-break depends on incidental sort
// stability and insertion order.
func (p *Pool) FindFit(size uint64) (SegmentID, uint64, bool) {
	i := sort.Search(len(p.sizes), func(i int) bool { return p.sizes[i] >= size })
	if i == len(p.sizes) {
		return 0, 0, false
	}

	foundSize := p.sizes[i]
	bucket := p.buckets[foundSize]

	best := bucket[0]
	for _, s := range bucket[1:] {
		if s < best {
			best = s
		}
	}

	return best, foundSize, true
}

// Count returns how many (seg, size) descriptors are currently present.
func (p *Pool) Count(seg SegmentID, size uint64) int {
	n := 0

	for _, s := range p.buckets[size] {
		if s == seg {
			n++
		}
	}

	return n
}

// TotalForSegment returns the total number of free-block descriptors held
// for seg, across all sizes.
func (p *Pool) TotalForSegment(seg SegmentID) int {
	n := 0

	for _, bucket := range p.buckets {
		for _, s := range bucket {
			if s == seg {
				n++
			}
		}
	}

	return n
}

package allocator

// CheckInvariants verifies every segment's tiling and the pool index are
// mutually consistent. It is expensive (O(total blocks)) and intended for
// tests and the WithInvariantChecks debug mode, not the hot path.
func (e *Engine) CheckInvariants() error {
	for _, id := range e.table.Segments() {
		if err := e.checkSegment(id); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) checkSegment(id SegmentID) error {
	seg, ok := e.table.Segment(id)
	if !ok {
		return &InvariantError{Op: "check", SegmentID: id, Reason: "segment missing from table"}
	}

	blocks := seg.Blocks()

	if len(blocks) == 0 {
		return &InvariantError{Op: "check", SegmentID: id, Reason: "segment has no blocks"}
	}

	want := uint64(0)
	freeCounts := map[uint64]int{}

	for i, b := range blocks {
		if b.Start != want {
			return &InvariantError{Op: "check", SegmentID: id, Start: b.Start, Reason: "gap or overlap in segment tiling"}
		}

		if b.End <= b.Start {
			return &InvariantError{Op: "check", SegmentID: id, Start: b.Start, Reason: "zero or negative size block"}
		}

		if !b.Liveness.Live {
			if i > 0 && !blocks[i-1].Liveness.Live {
				return &InvariantError{Op: "check", SegmentID: id, Start: b.Start, Reason: "two adjacent free blocks were not coalesced"}
			}

			freeCounts[b.Size()]++
		}

		want = b.End
	}

	if want != seg.Capacity {
		return &InvariantError{Op: "check", SegmentID: id, Start: want, Size: seg.Capacity, Reason: "segment tiling does not reach capacity"}
	}

	for size, count := range freeCounts {
		if e.pool.Count(id, size) != count {
			return &InvariantError{Op: "check", SegmentID: id, Size: size, Reason: "pool index count does not match free blocks in segment"}
		}
	}

	if e.pool.TotalForSegment(id) != sumValues(freeCounts) {
		return &InvariantError{Op: "check", SegmentID: id, Reason: "pool index has stale descriptors for segment"}
	}

	return nil
}

func sumValues(m map[uint64]int) int {
	n := 0
	for _, v := range m {
		n += v
	}

	return n
}

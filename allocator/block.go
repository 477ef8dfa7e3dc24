package allocator

// Liveness records whether a block is free or live, and if live, the tick at
// which its owner is scheduled to die. The field is carried for diagnostics
// and potential future death-aware policies; best-fit selection never reads
// it.
type Liveness struct {
	Live bool
	Die  int64
}

// Free returns the liveness value for a free block.
func Free() Liveness {
	return Liveness{}
}

// LiveUntil returns the liveness value for a block live until tick die.
func LiveUntil(die int64) Liveness {
	return Liveness{Live: true, Die: die}
}

// Block is a contiguous half-open byte interval [Start, End) within a
// segment, either free or live.
type Block struct {
	Start    uint64
	End      uint64
	Liveness Liveness
}

// Size returns End - Start.
func (b Block) Size() uint64 {
	return b.End - b.Start
}

// Package trace loads liveness traces describing a fixed sequence of
// large-allocation lifetimes to replay against an allocator.Engine.
package trace

// LargeThreshold is the block size a trace record must strictly exceed to be
// included in a Record set: blocks at or below it are outside the
// large-buffer caching behavior being simulated.
const LargeThreshold = 20 * 1024 * 1024 // 20 MiB

// Record describes one large allocation's lifetime: born at tick Born,
// freed at tick Die, with a fixed Size. ID is the operation identifier the
// trace assigns it, used only for diagnostics — Born and Die drive replay.
type Record struct {
	ID   int64
	Size uint64
	Born int64
	Die  int64
}

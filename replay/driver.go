// Package replay drives an allocator.Engine through a trace's recorded
// allocation lifetimes, tick by tick.
package replay

import (
	"errors"
	"sort"

	"github.com/gpualloc/allocsim/allocator"
	"github.com/gpualloc/allocsim/internal/metrics"
	"github.com/gpualloc/allocsim/repo/logging"
	"github.com/gpualloc/allocsim/trace"
)

var log = logging.Module("allocsim/replay")

// Report summarizes one completed replay.
type Report struct {
	SegmentCount    int
	MaxReservedSize uint64
}

type liveBlock struct {
	seg   allocator.SegmentID
	start uint64
	size  uint64
}

// Run replays records against engine in tick order and returns the
// resulting Report. Within a single tick, every record born at that tick
// is allocated before any record dying at that tick is freed, matching the
// order the trace was recorded in. Each malloc receives the record's Die
// relative to the earliest Born. A malloc that returns allocator.ErrOOM is
// logged and that record is skipped; the replay goes on.
func Run(engine *allocator.Engine, records []trace.Record) (Report, error) {
	return RunWithMetrics(engine, records, nil)
}

// RunWithMetrics is Run with a metrics.Registry the replay reports a
// horizon gauge to. A nil registry makes the gauge update a no-op.
func RunWithMetrics(engine *allocator.Engine, records []trace.Record, reg *metrics.Registry) (Report, error) {
	if len(records) == 0 {
		return Report{SegmentCount: engine.SegmentCount(), MaxReservedSize: engine.MaxReservedSize()}, nil
	}

	bornAt := map[int64][]trace.Record{}
	dyingAt := map[int64][]int64{}

	minBorn, maxDie := records[0].Born, records[0].Die

	for _, r := range records {
		bornAt[r.Born] = append(bornAt[r.Born], r)
		dyingAt[r.Die] = append(dyingAt[r.Die], r.ID)

		if r.Born < minBorn {
			minBorn = r.Born
		}

		if r.Die > maxDie {
			maxDie = r.Die
		}
	}

	horizonGauge := reg.GaugeInt64("sim_horizon", "Last tick processed by the replay driver", nil)

	live := map[int64]liveBlock{}

	for tick := minBorn; tick <= maxDie; tick++ {
		for _, r := range bornAt[tick] {
			seg, start, size, err := engine.Malloc(r.Size, r.Die-minBorn)
			if errors.Is(err, allocator.ErrOOM) {
				log.Warnw("simulated OOM, record skipped", "id", r.ID, "size", r.Size, "tick", tick)
				continue
			}

			if err != nil {
				return Report{}, err
			}

			live[r.ID] = liveBlock{seg: seg, start: start, size: size}
		}

		for _, id := range dyingAt[tick] {
			b, ok := live[id]
			if !ok {
				continue // not live: its malloc hit a simulated OOM, or its Die precedes its Born.
			}

			if err := engine.Free(b.seg, b.start, b.size); err != nil {
				return Report{}, err
			}

			delete(live, id)
		}

		horizonGauge.Set(tick)
	}

	log.Debugw("replay complete", "records", len(records), "segments", engine.SegmentCount(), "maxReservedSize", engine.MaxReservedSize())

	return Report{SegmentCount: engine.SegmentCount(), MaxReservedSize: engine.MaxReservedSize()}, nil
}

// SortByBorn returns records sorted by Born tick, the order Run expects
// (Run itself tolerates any order, but callers building synthetic traces
// often want this for readability).
func SortByBorn(records []trace.Record) []trace.Record {
	out := make([]trace.Record, len(records))
	copy(out, records)

	sort.Slice(out, func(i, j int) bool { return out[i].Born < out[j].Born })

	return out
}

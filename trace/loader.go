package trace

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

var numberPattern = regexp.MustCompile(`\d+`)

// LoadDir loads a trace directory containing submemory_size_list.txt (one
// "op_id size" pair per line) and submemory_liveness.txt (one
// "op_id tick0 event0 tick1 event1 ..." line per op, events ignored) and
// returns every Record whose size exceeds LargeThreshold, together with the
// maximum size observed among them (used by the global-max size policy).
func LoadDir(dir string) ([]Record, uint64, error) {
	sizes, err := loadSizes(filepath.Join(dir, "submemory_size_list.txt"))
	if err != nil {
		return nil, 0, errors.Wrap(err, "trace: loading size list")
	}

	large := map[int64]uint64{}

	var maxSize uint64

	for id, size := range sizes {
		if size <= LargeThreshold {
			continue
		}

		large[id] = size

		if size > maxSize {
			maxSize = size
		}
	}

	ticks, err := loadTicks(filepath.Join(dir, "submemory_liveness.txt"), large)
	if err != nil {
		return nil, 0, errors.Wrap(err, "trace: loading liveness")
	}

	ids := make([]int64, 0, len(large))
	for id := range large {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	records := make([]Record, 0, len(ids))

	for _, id := range ids {
		tk, ok := ticks[id]
		if !ok {
			return nil, 0, errors.Errorf("trace: op %d has a size but no liveness entry", id)
		}

		born, die := tk[0], tk[len(tk)-1]
		if die < born {
			return nil, 0, errors.Errorf("trace: op %d dies (%d) before it is born (%d)", id, die, born)
		}

		records = append(records, Record{ID: id, Size: large[id], Born: born, Die: die})
	}

	return records, maxSize, nil
}

func loadSizes(path string) (map[int64]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	out := map[int64]uint64{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		nums := numberPattern.FindAllString(scanner.Text(), -1)
		if len(nums) < 2 {
			continue
		}

		id, err := strconv.ParseInt(nums[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing op id %q", nums[0])
		}

		size, err := strconv.ParseUint(nums[1], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing size %q", nums[1])
		}

		out[id] = size
	}

	return out, scanner.Err()
}

// loadTicks reads every "op_id tick event tick event ..." line and, for the
// op ids present in keep, records the ordered list of tick values: every
// number after the op id is taken as a tick, and event words carry no digits
// so they are discarded (replay only needs the timestamps, not their meaning).
func loadTicks(path string, keep map[int64]uint64) (map[int64][]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	out := map[int64][]int64{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		nums := numberPattern.FindAllString(scanner.Text(), -1)
		if len(nums) < 1 {
			continue
		}

		id, err := strconv.ParseInt(nums[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing op id %q", nums[0])
		}

		if _, ok := keep[id]; !ok {
			continue
		}

		ticks := make([]int64, 0, len(nums)-1)

		for i := 1; i < len(nums); i++ {
			tick, err := strconv.ParseInt(nums[i], 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing tick %q", nums[i])
			}

			ticks = append(ticks, tick)
		}

		if len(ticks) == 0 {
			return nil, errors.Errorf("op %d has no liveness ticks", id)
		}

		out[id] = ticks
	}

	return out, scanner.Err()
}

package allocator

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrOOM is returned by Malloc when the engine was constructed with a
// capacity cap (WithMaxCapacity) and that cap has been reached. It is an
// expected condition: the simulation continues, the caller decides what to
// do. Unreachable under the default, uncapped configuration.
var ErrOOM = errors.New("allocator: out of memory")

// InvariantError reports a core invariant violation: a bug in the
// allocator's own bookkeeping rather than a problem with caller input. Every
// occurrence is a reason to halt the simulation immediately.
type InvariantError struct {
	// Op names the operation during which the violation was detected
	// (e.g. "malloc", "free", "pool_remove", "check").
	Op string

	SegmentID SegmentID
	Start     uint64
	Size      uint64
	Reason    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("allocator: invariant violated during %s(segment=%d, start=%d, size=%d): %s",
		e.Op, e.SegmentID, e.Start, e.Size, e.Reason)
}

// IsInvariantViolation reports whether err is (or wraps) an *InvariantError.
func IsInvariantViolation(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

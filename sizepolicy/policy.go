// Package sizepolicy provides the AllocationSize strategies an
// allocator.Engine reserves new segments with.
package sizepolicy

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/gpualloc/allocsim/allocator"
)

// Name identifies one of the registered policies, e.g. for CLI flags.
type Name string

// Registered policy names.
const (
	RoundLargeName Name = "round-large"
	NextPow2Name   Name = "next-pow2"
	GlobalMaxName  Name = "global-max"
)

// RoundUp reserves ceil(size / Quantum) * Quantum bytes, the policy the
// allocator uses by default.
type RoundUp struct {
	Quantum uint64
}

// AllocationSize implements allocator.SizePolicy.
func (p RoundUp) AllocationSize(size uint64) uint64 {
	if p.Quantum == 0 {
		return size
	}

	if size%p.Quantum == 0 {
		return size
	}

	return (size/p.Quantum + 1) * p.Quantum
}

// NextPowerOfTwo reserves the smallest power of two >= size.
type NextPowerOfTwo struct{}

// AllocationSize implements allocator.SizePolicy.
func (NextPowerOfTwo) AllocationSize(size uint64) uint64 {
	if size <= 1 {
		return 1
	}

	return uint64(1) << bits.Len64(size-1)
}

// GlobalMax reserves Max bytes for every request up to Max, and the requested
// size itself for a request larger than Max. Grounded in traces where every observed block shares one fixed segment
// size; requires the caller to supply that size up front (from the trace's
// own maximum, typically).
type GlobalMax struct {
	Max uint64
}

// AllocationSize implements allocator.SizePolicy.
func (p GlobalMax) AllocationSize(size uint64) uint64 {
	if size > p.Max {
		return size
	}

	return p.Max
}

// New builds the named policy. globalMax is only consulted when name is
// GlobalMaxName.
func New(name Name, globalMax uint64) (allocator.SizePolicy, error) {
	switch name {
	case RoundLargeName:
		return RoundUp{Quantum: allocator.KRoundLarge}, nil
	case NextPow2Name:
		return NextPowerOfTwo{}, nil
	case GlobalMaxName:
		if globalMax == 0 {
			return nil, errors.New("sizepolicy: global-max policy requires a non-zero max size")
		}

		return GlobalMax{Max: globalMax}, nil
	default:
		return nil, errors.Errorf("sizepolicy: unknown policy %q", name)
	}
}

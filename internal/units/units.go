// Package units formats the binary byte sizes used throughout the
// allocator: segment capacities, block sizes, and the report's final
// counters.
package units

import "fmt"

const (
	kib = 1024
	mib = kib * 1024
	gib = mib * 1024
)

// BytesString renders size using the report's binary-unit rule: below 1 KiB
// it prints raw bytes, below 1 MiB it prints KiB with two decimals, below 1
// GiB it prints MiB with two decimals, otherwise GiB with two decimals.
func BytesString(size uint64) string {
	switch {
	case size < kib:
		return fmt.Sprintf("%d B", size)
	case size < mib:
		return fmt.Sprintf("%.2f KiB", float64(size)/kib)
	case size < gib:
		return fmt.Sprintf("%.2f MiB", float64(size)/mib)
	default:
		return fmt.Sprintf("%.2f GiB", float64(size)/gib)
	}
}

// Package buf holds overflow-checked arithmetic for offsets and lengths
// read back from a pool, where a torn or corrupt word can hold any value.
package buf

import (
	"fmt"
	"math"
)

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow uint64.
func AddOverflowSafe(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// MulOverflowSafe multiplies a and b, returning ok = false when the result would overflow uint64.
// This is essential for count * elementSize calculations on table sizes read from disk.
func MulOverflowSafe(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxUint64/b {
		return 0, false
	}
	return a * b, true
}

// InRange reports whether [off, off+n) lies inside [0, limit).
func InRange(off, n, limit uint64) bool {
	end, ok := AddOverflowSafe(off, n)
	return ok && end <= limit
}

// CheckTableBounds validates a table of count elements of elementSize
// bytes starting at offset inside a region of limit bytes, and returns the
// offset just past its end.
//
//	end, err := buf.CheckTableBounds(usable, 0, nbuckets, 8)
//	if err != nil {
//	    return fmt.Errorf("bucket array: %w", err)
//	}
func CheckTableBounds(limit, offset, count, elementSize uint64) (uint64, error) {
	totalSize, ok := MulOverflowSafe(count, elementSize)
	if !ok {
		return 0, fmt.Errorf("overflow: count=%d * elemSize=%d", count, elementSize)
	}
	endOffset, ok := AddOverflowSafe(offset, totalSize)
	if !ok {
		return 0, fmt.Errorf("overflow: offset=%d + size=%d", offset, totalSize)
	}
	if endOffset > limit {
		return 0, fmt.Errorf("bounds: end=%d > limit=%d", endOffset, limit)
	}
	return endOffset, nil
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n uint64) ([]byte, bool) {
	if !InRange(off, n, uint64(len(b))) {
		return nil, false
	}
	return b[off : off+n], true
}

//go:build unix && !darwin

package pool

import "golang.org/x/sys/unix"

// msyncRange flushes one range of the mapping.
//
// On Linux and the BSDs msync() accepts sub-slices of the mapping.
func msyncRange(data []byte, start, end int64) error {
	return unix.Msync(data[start:end], unix.MS_SYNC)
}

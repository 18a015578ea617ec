//go:build linux && (amd64 || arm64)

package pool

import (
	"errors"

	"golang.org/x/sys/unix"
)

// mapShared maps fd with MAP_SYNC first. The kernel only accepts MAP_SYNC
// on DAX filesystems, so success means the file lives on persistent memory.
func mapShared(fd, size int) ([]byte, bool, error) {
	prot := unix.PROT_READ | unix.PROT_WRITE
	data, err := unix.Mmap(fd, 0, size, prot, unix.MAP_SHARED_VALIDATE|unix.MAP_SYNC)
	if err == nil {
		return data, true, nil
	}
	if !errors.Is(err, unix.EOPNOTSUPP) && !errors.Is(err, unix.EINVAL) {
		return nil, false, err
	}
	data, err = unix.Mmap(fd, 0, size, prot, unix.MAP_SHARED)
	return data, false, err
}

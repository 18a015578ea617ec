//go:build unix && !(linux && (amd64 || arm64))

package pool

import "golang.org/x/sys/unix"

func mapShared(fd, size int) ([]byte, bool, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	return data, false, err
}

//go:build unix && !linux && !darwin

package pool

import "golang.org/x/sys/unix"

func fdatasync(fd int, _ bool) error {
	return unix.Fsync(fd)
}

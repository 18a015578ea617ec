//go:build linux

package pool

import (
	"errors"
	"fmt"
	"runtime/debug"
	"unsafe"

	"golang.org/x/sys/unix"
)

// madvPopulateRead is available since Linux 5.14. It pre-faults pages and
// returns EFAULT instead of generating SIGBUS.
const madvPopulateRead = 22

// PreFaultPages faults in every page of a mapping so that a truncated or
// inaccessible backing file surfaces as an error at open time instead of a
// SIGBUS in the middle of a transaction.
//
// MADV_POPULATE_READ is tried first; kernels that do not know it fall back
// to touching one byte per page with SetPanicOnFault protection.
func PreFaultPages(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	_, _, errno := unix.Syscall(
		unix.SYS_MADVISE,
		uintptr(unsafe.Pointer(&data[0])),
		uintptr(len(data)),
		uintptr(madvPopulateRead),
	)
	if errno == 0 {
		return nil
	}
	if !errors.Is(errno, unix.EINVAL) && !errors.Is(errno, unix.ENOSYS) {
		return fmt.Errorf("madvise populate failed: %w", errno)
	}
	return manualPreFault(data)
}

func manualPreFault(data []byte) (retErr error) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)

	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				retErr = fmt.Errorf("memory access fault during pre-fault: %w", err)
			} else {
				retErr = fmt.Errorf("memory access fault during pre-fault: %v", r)
			}
		}
	}()

	pageSize := unix.Getpagesize()
	var sink byte
	for i := 0; i < len(data); i += pageSize {
		sink ^= data[i]
	}
	sink ^= data[len(data)-1]
	_ = sink

	return nil
}

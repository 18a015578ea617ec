//go:build unix

package pool

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/pmemkit/internal/format"
)

type defaultMapper struct{}

// Map opens the file RW and maps it shared so stores land in the file.
func (defaultMapper) Map(path string, size int64, create bool, perm os.FileMode) (*Region, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return nil, err
	}

	if create {
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("mapping: size %s: %w", path, err)
		}
	} else {
		st, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		size = st.Size()
	}
	if size == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("mapping: empty file: %s", path)
	}
	if size > int64(^uint(0)>>1) {
		_ = f.Close()
		return nil, fmt.Errorf("mapping: file too large to map (%d bytes)", size)
	}

	data, pmem, err := mapShared(int(f.Fd()), int(size))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return &Region{Data: data, File: f, IsPMEM: pmem}, nil
}

func (defaultMapper) FlushRegion(r *Region, off, length int64) error {
	start, end, ok := clampRange(r, off, length)
	if !ok {
		return nil
	}
	// msync wants a page-aligned address; the mapping base is page-aligned.
	start = format.AlignPageDown(start)
	return msyncRange(r.Data, start, end)
}

func (defaultMapper) Sync(r *Region, full bool) error {
	if r.File == nil {
		return nil
	}
	return fdatasync(int(r.File.Fd()), full)
}

func (defaultMapper) Unmap(r *Region) error {
	var err error
	if r.Data != nil {
		err = unix.Munmap(r.Data)
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			err = nil
		}
		r.Data = nil
	}
	if r.File != nil {
		err = errors.Join(err, r.File.Close())
		r.File = nil
	}
	return err
}

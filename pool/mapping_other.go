//go:build !unix

package pool

import (
	"fmt"
	"io"
	"os"
)

// defaultMapper loads the file into memory on platforms without mmap support
// in x/sys/unix. Flushed ranges are written back with WriteAt.
type defaultMapper struct{}

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
			f.Close()
			return nil, fmt.Errorf("mapping: size %s: %w", path, err)
		}
	} else {
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		size = st.Size()
	}
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("mapping: empty file: %s", path)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, size), buf); err != nil {
		f.Close()
		return nil, err
	}
	return &Region{Data: buf, File: f}, nil
}

func (defaultMapper) FlushRegion(r *Region, off, length int64) error {
	start, end, ok := clampRange(r, off, length)
	if !ok || r.File == nil {
		return nil
	}
	_, err := r.File.WriteAt(r.Data[start:end], start)
	return err
}

func (defaultMapper) Sync(r *Region, _ bool) error {
	if r.File == nil {
		return nil
	}
	return r.File.Sync()
}

func (defaultMapper) Unmap(r *Region) error {
	var err error
	if r.File != nil {
		err = r.File.Close()
		r.File = nil
	}
	r.Data = nil
	return err
}

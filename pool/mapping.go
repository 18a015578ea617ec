package pool

import "os"

// Region is one mapped view of a backing file.
type Region struct {
	Data   []byte   // Mapped bytes, len == file size
	File   *os.File // Backing file, kept open for syncs
	IsPMEM bool     // True when stores reach persistent memory without page cache writeback
}

// Mapper maps backing files into the address space and pushes byte ranges
// of a mapping toward the persistence boundary.
//
// Implementations:
//   - DefaultMapper(): mmap(MAP_SHARED) on unix, probing MAP_SYNC on linux
//   - the non-unix fallback, which keeps the file in a heap buffer and writes ranges back
type Mapper interface {
	// Map opens (or, with create, creates and sizes) path and maps it.
	// size is ignored when create is false; the whole file is mapped.
	Map(path string, size int64, create bool, perm os.FileMode) (*Region, error)

	// FlushRegion writes back [off, off+length) of the mapping.
	FlushRegion(r *Region, off, length int64) error

	// Sync makes previously flushed ranges durable on the device.
	// full requests the strongest barrier the platform offers.
	Sync(r *Region, full bool) error

	// Unmap releases the mapping and closes the file.
	Unmap(r *Region) error
}

// DefaultMapper returns the platform mapper.
func DefaultMapper() Mapper { return defaultMapper{} }

// clampRange bounds [off, off+length) to the region and reports whether
// anything is left.
func clampRange(r *Region, off, length int64) (int64, int64, bool) {
	n := int64(len(r.Data))
	if off < 0 {
		length += off
		off = 0
	}
	if off >= n || length <= 0 {
		return 0, 0, false
	}
	end := off + length
	if end > n {
		end = n
	}
	return off, end, true
}

package pool

import "errors"

var (
	// ErrIO indicates a backing-store failure. The handle that reported it
	// must be closed and the pool reopened.
	ErrIO = errors.New("pool: I/O error")

	// ErrNotFound indicates that the pool file does not exist.
	ErrNotFound = errors.New("pool: not found")

	// ErrAlreadyExists indicates that Create found a non-empty file at the path.
	ErrAlreadyExists = errors.New("pool: already exists")

	// ErrInvalidSize indicates a requested capacity outside [MinPoolSize, MaxPoolSize].
	ErrInvalidSize = errors.New("pool: invalid size")

	// ErrInvalidLayout indicates a layout tag that cannot be stored in the header.
	ErrInvalidLayout = errors.New("pool: invalid layout tag")

	// ErrCorruptHeader indicates a bad magic, version, size or checksum.
	ErrCorruptHeader = errors.New("pool: corrupt header")

	// ErrLayoutMismatch indicates the pool was created with a different layout tag.
	ErrLayoutMismatch = errors.New("pool: layout mismatch")

	// ErrClosed indicates use of a pool after Close.
	ErrClosed = errors.New("pool: closed")
)

package alloc

import "errors"

var (
	// ErrOutOfSpace indicates that no free slot large enough exists.
	ErrOutOfSpace = errors.New("alloc: out of space")

	// ErrInvalidRef indicates a reference that does not name a live
	// allocation of this pool.
	ErrInvalidRef = errors.New("alloc: invalid object reference")

	// ErrForeignRef indicates a reference stamped with another pool's id.
	// It is always reported wrapped together with ErrInvalidRef.
	ErrForeignRef = errors.New("alloc: reference belongs to another pool")

	// ErrInvalidSize indicates a zero size or one larger than the heap.
	ErrInvalidSize = errors.New("alloc: invalid allocation size")

	// ErrInitFailed wraps the error returned by an InitFunc.
	ErrInitFailed = errors.New("alloc: init callback failed")

	// ErrCorruptHeap indicates a slot header that cannot be valid.
	ErrCorruptHeap = errors.New("alloc: corrupt heap")
)

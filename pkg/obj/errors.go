package obj

import (
	"errors"

	"github.com/joshuapare/pmemkit/pool"
	"github.com/joshuapare/pmemkit/pool/action"
	"github.com/joshuapare/pmemkit/pool/alloc"
	"github.com/joshuapare/pmemkit/pool/persist"
)

// ErrSizeMismatch indicates a Root call with a size other than the one the
// root was created with.
var ErrSizeMismatch = errors.New("obj: root size mismatch")

// Re-exported sentinels.
var (
	ErrIO             = pool.ErrIO
	ErrNotFound       = pool.ErrNotFound
	ErrAlreadyExists  = pool.ErrAlreadyExists
	ErrInvalidLayout  = pool.ErrInvalidLayout
	ErrCorruptHeader  = pool.ErrCorruptHeader
	ErrLayoutMismatch = pool.ErrLayoutMismatch
	ErrClosed         = pool.ErrClosed
	ErrPoisoned       = persist.ErrPoisoned

	ErrOutOfSpace  = alloc.ErrOutOfSpace
	ErrInvalidRef  = alloc.ErrInvalidRef
	ErrForeignRef  = alloc.ErrForeignRef
	ErrInvalidSize = alloc.ErrInvalidSize
	ErrInitFailed  = alloc.ErrInitFailed
	ErrCorruptHeap = alloc.ErrCorruptHeap

	ErrBatchFull     = action.ErrBatchFull
	ErrBatchDone     = action.ErrBatchDone
	ErrCorruptLog    = action.ErrCorruptLog
	ErrDuplicateFree = action.ErrDuplicateFree
)

package action

import "errors"

var (
	// ErrBatchFull indicates that a batch already holds MaxActions records.
	ErrBatchFull = errors.New("action: batch full")

	// ErrBatchDone indicates use of a batch after Publish or Abandon.
	ErrBatchDone = errors.New("action: batch already published or abandoned")

	// ErrCorruptLog indicates a committed log whose records cannot be valid.
	ErrCorruptLog = errors.New("action: corrupt action log")

	// ErrDuplicateFree indicates a second ReserveFree of the same object
	// in one batch.
	ErrDuplicateFree = errors.New("action: object already freed in this batch")

	// errCrashed is returned when a test hook stops a commit or a replay.
	errCrashed = errors.New("action: simulated crash")
)

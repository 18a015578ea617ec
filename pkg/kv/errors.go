package kv

import "errors"

var (
	// ErrNotFound indicates a key that is not in the database.
	ErrNotFound = errors.New("kv: key not found")

	// ErrUnknownEngine indicates an engine name with no registered engine.
	ErrUnknownEngine = errors.New("kv: unknown engine")

	// ErrConfig indicates a missing or mistyped configuration value.
	ErrConfig = errors.New("kv: invalid config")

	// ErrClosed indicates use of a closed database.
	ErrClosed = errors.New("kv: database closed")

	// ErrCorrupt indicates engine data that does not decode.
	ErrCorrupt = errors.New("kv: corrupt engine data")
)

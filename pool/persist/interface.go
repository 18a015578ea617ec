package persist

// Flusher is the minimal interface for components that write into a pool
// but leave ordering to someone else (the allocator's reserve path).
type Flusher interface {
	// Flush records [off, off+length) as written.
	Flush(off, length int64)
}

// Drainer extends Flusher with the ordering points used by commit paths.
type Drainer interface {
	Flusher

	// Drain makes every previously flushed range durable.
	Drain() error

	// Persist is Flush followed by Drain.
	Persist(off, length int64) error
}

// Target is what a Tracker writes back to. *pool.Pool implements it.
type Target interface {
	FlushRange(off, length int64) error
	Sync() error
}

var (
	_ Drainer = (*Tracker)(nil)
)

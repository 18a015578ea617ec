package persist

import (
	"fmt"
	"slices"
	"sync"

	"github.com/joshuapare/pmemkit/internal/format"
)

// defaultRangeCapacity covers a publish of a full batch without growing.
const defaultRangeCapacity = 64

// Range is a flushed byte range (absolute pool offsets).
type Range struct {
	Off int64
	Len int64
}

// Stats counts the work a Tracker has done.
type Stats struct {
	Flushes int // Flush calls
	Drains  int // Drain calls that reached the target
	Ranges  int // Coalesced ranges written back
}

// Tracker accumulates flushed ranges and drains them to a Target.
//
// Safe for concurrent use. A Drain writes back ranges flushed by any
// goroutine, which is never weaker than what each caller asked for.
type Tracker struct {
	mu       sync.Mutex
	target   Target
	ranges   []Range
	pageSize int64
	poison   error
	stats    Stats
}

// NewTracker creates a tracker draining to target.
func NewTracker(target Target) *Tracker {
	return &Tracker{
		target:   target,
		ranges:   make([]Range, 0, defaultRangeCapacity),
		pageSize: format.PageSize,
	}
}

// Flush records a written range. Non-positive lengths are ignored.
func (t *Tracker) Flush(off, length int64) {
	if length <= 0 {
		return
	}
	t.mu.Lock()
	t.ranges = append(t.ranges, Range{Off: off, Len: length})
	t.stats.Flushes++
	t.mu.Unlock()
}

// Drain writes back every recorded range and syncs the target.
// There is no cancellation: once started, a drain runs to completion or
// fails.
func (t *Tracker) Drain() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.poison != nil {
		return fmt.Errorf("%w: %w", ErrPoisoned, t.poison)
	}

	for _, r := range t.coalesce() {
		if err := t.target.FlushRange(r.Off, r.Len); err != nil {
			return t.fail(err)
		}
		t.stats.Ranges++
	}
	if err := t.target.Sync(); err != nil {
		return t.fail(err)
	}
	t.ranges = t.ranges[:0]
	t.stats.Drains++
	return nil
}

// Persist is Flush followed by Drain.
func (t *Tracker) Persist(off, length int64) error {
	t.Flush(off, length)
	return t.Drain()
}

// Pending reports the number of ranges flushed since the last Drain.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ranges)
}

// Stats returns a snapshot of the tracker counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Poisoned returns the drain failure that poisoned the tracker, if any.
func (t *Tracker) Poisoned() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.poison
}

func (t *Tracker) fail(err error) error {
	t.poison = err
	t.ranges = t.ranges[:0]
	return err
}

// coalesce page-aligns the recorded ranges, sorts them and merges
// overlapping or adjacent ones.
func (t *Tracker) coalesce() []Range {
	if len(t.ranges) == 0 {
		return nil
	}

	aligned := make([]Range, len(t.ranges))
	for i, r := range t.ranges {
		start := (r.Off / t.pageSize) * t.pageSize
		end := r.Off + r.Len
		if end%t.pageSize != 0 {
			end = (end/t.pageSize + 1) * t.pageSize
		}
		aligned[i] = Range{Off: start, Len: end - start}
	}

	slices.SortFunc(aligned, func(a, b Range) int {
		switch {
		case a.Off < b.Off:
			return -1
		case a.Off > b.Off:
			return 1
		}
		return 0
	})

	merged := make([]Range, 0, len(aligned))
	cur := aligned[0]
	for _, next := range aligned[1:] {
		if next.Off <= cur.Off+cur.Len {
			if end := next.Off + next.Len; end > cur.Off+cur.Len {
				cur.Len = end - cur.Off
			}
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	return append(merged, cur)
}

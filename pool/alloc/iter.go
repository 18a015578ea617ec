package alloc

import (
	"errors"
	"io"

	"github.com/joshuapare/pmemkit/pool"
)

// ObjectIterator walks the occupied allocations of one type in offset
// order. Reservations are never returned. The heap may be modified between
// calls to Next; allocations that exist for the whole walk are returned
// exactly once.
type ObjectIterator struct {
	h       *Heap
	tag     TypeNum
	next    uint64 // slot offset to examine next
	last    uint64 // slot offset last returned
	started bool
	gen     uint64
}

// Objects returns an iterator over the occupied allocations tagged tag.
func (h *Heap) Objects(tag TypeNum) *ObjectIterator {
	it := &ObjectIterator{h: h, tag: tag}
	it.Reset()
	return it
}

// Reset restarts the walk from the beginning of the heap.
func (it *ObjectIterator) Reset() {
	it.h.mu.RLock()
	it.gen = it.h.gen
	it.h.mu.RUnlock()
	it.next = it.h.start
	it.last = 0
	it.started = false
}

// Next returns the next allocation, or io.EOF when the walk is done.
// Once the pool is closed Next returns pool.ErrClosed.
func (it *ObjectIterator) Next() (ObjectRef, error) {
	h := it.h
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.p.Closed() {
		return Null, pool.ErrClosed
	}

	if it.gen != h.gen {
		// Slot boundaries moved; find our place again from the start.
		it.gen = h.gen
		it.next = h.start
		if it.started {
			for it.next < h.end && it.next <= it.last {
				size := h.readU64(it.next)
				if size == 0 {
					it.next = h.end
					break
				}
				it.next += size
			}
		}
	}

	for off := it.next; off < h.end; {
		size := h.readU64(off)
		if size == 0 {
			break
		}
		if s, ok := h.live[off]; ok && s.State == StateOccupied && s.Type == it.tag {
			it.next = off + size
			it.last = off
			it.started = true
			return h.RefAt(s.PayloadOff()), nil
		}
		off += size
	}
	it.next = h.end
	return Null, io.EOF
}

// ForEach calls fn for every occupied allocation tagged tag, in offset
// order. fn may allocate and free. Iteration stops at the first error fn
// returns, which ForEach returns.
func (h *Heap) ForEach(tag TypeNum, fn func(ref ObjectRef) error) error {
	it := h.Objects(tag)
	for {
		ref, err := it.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(ref); err != nil {
			return err
		}
	}
}

package alloc

import "container/heap"

// freeSlot is a free slot known to the allocator.
type freeSlot struct {
	off       uint64 // absolute offset of the slot header
	size      uint64 // slot size including header
	sc        int    // class index
	heapIndex int    // position in its class heap
}

// freeSlotHeap is a min-heap keyed on slot size, so the top of each class
// is its best fit.
type freeSlotHeap []*freeSlot

func (h freeSlotHeap) Len() int { return len(h) }

func (h freeSlotHeap) Less(i, j int) bool {
	if h[i].size != h[j].size {
		return h[i].size < h[j].size
	}
	// Equal sizes: prefer the lower offset so placement is deterministic.
	return h[i].off < h[j].off
}

func (h freeSlotHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *freeSlotHeap) Push(x any) {
	s := x.(*freeSlot) //nolint:errcheck // heap contains only *freeSlot
	s.heapIndex = len(*h)
	*h = append(*h, s)
}

func (h *freeSlotHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.heapIndex = -1
	*h = old[:n-1]
	return s
}

// freeIndex is the volatile view of every free slot: one heap per size
// class plus the lookups needed for coalescing.
type freeIndex struct {
	table   *sizeClassTable
	classes []freeSlotHeap       // numClasses()+1 heaps; the last is the large class
	byOff   map[uint64]*freeSlot // slot offset -> entry
	byEnd   map[uint64]*freeSlot // slot end offset -> entry, for backward coalescing
	bytes   uint64               // total free bytes
}

func newFreeIndex(table *sizeClassTable) *freeIndex {
	return &freeIndex{
		table:   table,
		classes: make([]freeSlotHeap, table.numClasses()+1),
		byOff:   make(map[uint64]*freeSlot, 256),
		byEnd:   make(map[uint64]*freeSlot, 256),
	}
}

func (fi *freeIndex) insert(off, size uint64) {
	s := &freeSlot{off: off, size: size, sc: fi.table.classOf(size)}
	heap.Push(&fi.classes[s.sc], s)
	fi.byOff[off] = s
	fi.byEnd[off+size] = s
	fi.bytes += size
}

func (fi *freeIndex) remove(s *freeSlot) {
	heap.Remove(&fi.classes[s.sc], s.heapIndex)
	delete(fi.byOff, s.off)
	delete(fi.byEnd, s.off+s.size)
	fi.bytes -= s.size
}

// bestFit removes and returns the smallest free slot of at least need
// bytes, or nil.
func (fi *freeIndex) bestFit(need uint64) *freeSlot {
	first := fi.table.classOf(need)
	for sc := first; sc < len(fi.classes); sc++ {
		h := fi.classes[sc]
		if h.Len() == 0 {
			continue
		}
		if h[0].size >= need {
			s := h[0]
			fi.remove(s)
			return s
		}
		// Only the first class and the large class can hold slots smaller
		// than need; scan them for the smallest that fits.
		var best *freeSlot
		for _, s := range h[1:] {
			if s.size >= need && (best == nil || s.size < best.size || (s.size == best.size && s.off < best.off)) {
				best = s
			}
		}
		if best != nil {
			fi.remove(best)
			return best
		}
	}
	return nil
}

// largest returns the size of the largest free slot.
func (fi *freeIndex) largest() uint64 {
	var top uint64
	for _, s := range fi.byOff {
		top = max(top, s.size)
	}
	return top
}

func (fi *freeIndex) count() int { return len(fi.byOff) }

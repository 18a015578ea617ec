package alloc

import (
	"fmt"
	"sort"

	"github.com/joshuapare/pmemkit/internal/format"
)

// Stats is a snapshot of heap occupancy.
type Stats struct {
	HeapSize uint64 // bytes between the header and the end of the pool

	FreeSlots     int
	ReservedSlots int
	OccupiedSlots int

	FreeBytes   uint64 // free slot bytes including headers
	UsedBytes   uint64 // reserved and occupied slot bytes including headers
	LargestFree uint64 // largest free slot including its header

	PerType map[TypeNum]int // occupied allocations per type tag

	Allocs uint64 // allocations made visible since open
	Frees  uint64 // allocations released since open
	Splits uint64
	Merges uint64
}

// Stats returns a snapshot of heap occupancy.
func (h *Heap) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := Stats{
		HeapSize:    h.end - h.start,
		FreeSlots:   h.free.count(),
		FreeBytes:   h.free.bytes,
		LargestFree: h.free.largest(),
		PerType:     make(map[TypeNum]int),
		Allocs:      h.stats.allocs,
		Frees:       h.stats.frees,
		Splits:      h.stats.splits,
		Merges:      h.stats.merges,
	}
	for _, s := range h.live {
		st.UsedBytes += s.Size
		switch s.State {
		case StateReserved:
			st.ReservedSlots++
		case StateOccupied:
			st.OccupiedSlots++
			st.PerType[s.Type]++
		}
	}
	return st
}

// Types returns the type tags with at least one occupied allocation, sorted.
func (st Stats) Types() []TypeNum {
	out := make([]TypeNum, 0, len(st.PerType))
	for t := range st.PerType {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Verify walks the persisted slot headers and checks them against the
// allocator's volatile state: every slot must be known, with the same size
// and state, and free and used bytes must add up to the heap size.
func (h *Heap) Verify() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var total uint64
	off := h.start
	for off < h.end {
		size := h.readU64(off)
		if size < hdr || size > h.end-off {
			return fmt.Errorf("%w: slot at %#x has size %d", ErrCorruptHeap, off, size)
		}
		state, tag := format.SplitMeta(h.readU64(off + format.SlotMetaOffset))

		if fs, ok := h.free.byOff[off]; ok {
			if fs.size != size || state != StateFree {
				return fmt.Errorf("%w: free slot at %#x: persisted %s/%d, indexed free/%d",
					ErrCorruptHeap, off, state, size, fs.size)
			}
		} else if s, ok := h.live[off]; ok {
			if s.Size != size {
				return fmt.Errorf("%w: slot at %#x: persisted size %d, indexed %d", ErrCorruptHeap, off, size, s.Size)
			}
			if s.State == StateOccupied && (state != StateOccupied || TypeNum(tag) != s.Type) {
				return fmt.Errorf("%w: slot at %#x: persisted %s/%#x, indexed occupied/%#x",
					ErrCorruptHeap, off, state, tag, uint32(s.Type))
			}
		} else {
			return fmt.Errorf("%w: slot at %#x (%s, %d bytes) unknown to the allocator", ErrCorruptHeap, off, state, size)
		}
		total += size
		off += size
	}
	if total != h.end-h.start {
		return fmt.Errorf("%w: slots cover %d bytes, heap is %d", ErrCorruptHeap, total, h.end-h.start)
	}
	return nil
}

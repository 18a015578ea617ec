package alloc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/pool"
	"github.com/joshuapare/pmemkit/pool/persist"
)

// SlotState is the persisted state of a slot.
type SlotState = format.SlotState

const (
	StateFree     = format.StateFree
	StateReserved = format.StateReserved
	StateOccupied = format.StateOccupied
)

const hdr = format.SlotHeaderSize

// SlotInfo describes a live (reserved or occupied) slot.
type SlotInfo struct {
	Off   uint64 // absolute offset of the slot header
	Size  uint64 // slot size including header
	State SlotState
	Type  TypeNum
}

// PayloadOff returns the absolute offset of the payload.
func (s SlotInfo) PayloadOff() uint64 { return s.Off + hdr }

// Usable returns the payload capacity.
func (s SlotInfo) Usable() uint64 { return s.Size - hdr }

// Heap is the persistent heap allocator of one pool.
//
// The persisted slot headers are the source of truth; the free lists and
// the live-slot index are rebuilt from them by NewHeap. All header writes
// happen under mu, except meta words stored by the action log's apply
// step, which only touch slots the log owns.
type Heap struct {
	mu    sync.RWMutex
	p     *pool.Pool
	d     persist.Drainer
	data  []byte
	start uint64
	end   uint64
	id    uint64
	log   *slog.Logger

	free *freeIndex
	live map[uint64]SlotInfo // reserved and occupied slots by offset
	pins map[uint64]*pin     // live slots referenced by pending batches
	gen  uint64              // bumped whenever slot boundaries move

	// unsettled is set while a merged slot's size word is flushed but not
	// drained. Until it is, the headers of the slots it swallowed are
	// still needed on the device.
	unsettled bool

	stats counters
}

type counters struct {
	allocs, frees, splits, merges uint64
}

// NewHeap audits the heap of p and builds the allocator's volatile state.
//
// The audit turns reserved slots left by an interrupted process into free
// ones, merges adjacent free slots, and formats an empty heap. It must run
// after action log recovery so replayed records are already applied.
func NewHeap(p *pool.Pool, d persist.Drainer, cfg *SizeClassConfig) (*Heap, error) {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	h := &Heap{
		p:     p,
		d:     d,
		data:  p.Bytes(),
		start: format.HeapStart,
		end:   uint64(p.Size()),
		id:    p.ID(),
		log:   p.Logger(),
		free:  newFreeIndex(newSizeClassTable(*cfg)),
		live:  make(map[uint64]SlotInfo, 256),
		pins:  make(map[uint64]*pin),
	}
	if err := h.audit(); err != nil {
		return nil, err
	}
	return h, nil
}

// PoolID returns the id stamped into every reference this heap hands out.
func (h *Heap) PoolID() uint64 { return h.id }

// RefAt builds a reference for a payload offset of this pool.
func (h *Heap) RefAt(payloadOff uint64) ObjectRef {
	if payloadOff == 0 {
		return Null
	}
	return ObjectRef{PoolID: h.id, Off: payloadOff}
}

func (h *Heap) audit() error {
	if h.readU64(h.start) == 0 && h.readU64(h.start+8) == 0 {
		size := h.end - h.start
		h.putSlot(h.start, size, StateFree, 0)
		if err := h.d.Drain(); err != nil {
			return err
		}
		h.free.insert(h.start, size)
		h.log.Debug("heap formatted", "path", h.p.Path(), "size", size)
		return nil
	}

	var (
		repaired, merged int
		runOff, runSize  uint64
		inRun            bool
	)
	for off := h.start; off < h.end; {
		size := h.readU64(off)
		state, tag := format.SplitMeta(h.readU64(off + format.SlotMetaOffset))
		if size < format.MinSlotSize || size&format.SlotAlignmentMask != 0 || size > h.end-off {
			return fmt.Errorf("%w: slot at %#x has size %d", ErrCorruptHeap, off, size)
		}

		switch state {
		case StateReserved:
			// Nobody owns a reservation across a restart.
			h.setMeta(off, StateFree, 0)
			repaired++
			fallthrough
		case StateFree:
			if inRun {
				runSize += size
				h.setSize(runOff, runSize)
				merged++
			} else {
				inRun, runOff, runSize = true, off, size
			}
		case StateOccupied:
			if inRun {
				h.free.insert(runOff, runSize)
				inRun = false
			}
			h.live[off] = SlotInfo{Off: off, Size: size, State: StateOccupied, Type: TypeNum(tag)}
		default:
			return fmt.Errorf("%w: slot at %#x has state %d", ErrCorruptHeap, off, state)
		}
		off += size
	}
	if inRun {
		h.free.insert(runOff, runSize)
	}

	if repaired+merged > 0 {
		h.log.Info("heap repaired", "path", h.p.Path(), "released", repaired, "merged", merged)
		return h.d.Drain()
	}
	return nil
}

// slotSize validates a payload size and returns the slot size holding it.
func (h *Heap) slotSize(size uint64) (uint64, error) {
	if size == 0 || size > h.end-h.start-hdr {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return format.SlotSizeFor(size), nil
}

// Alloc allocates size payload bytes tagged with tag, zeroes them and runs
// init before the allocation becomes visible. init may be nil.
//
// If init fails the slot is released and the returned error wraps both
// ErrInitFailed and init's error.
func (h *Heap) Alloc(size uint64, tag TypeNum, init InitFunc, arg any) (ObjectRef, error) {
	need, err := h.slotSize(size)
	if err != nil {
		return Null, err
	}

	h.mu.Lock()
	s, err := h.reserveLocked(need, tag)
	h.mu.Unlock()
	if err != nil {
		return Null, err
	}

	payload := h.data[s.PayloadOff() : s.Off+s.Size]
	if init != nil {
		if err := init(payload, arg); err != nil {
			h.mu.Lock()
			h.releaseLocked(s)
			h.mu.Unlock()
			return Null, fmt.Errorf("%w: %w", ErrInitFailed, err)
		}
		h.d.Flush(int64(s.PayloadOff()), int64(len(payload)))
	}

	// The payload must be durable before the state word makes it visible.
	if err := h.d.Drain(); err != nil {
		return Null, err
	}

	h.mu.Lock()
	h.setMeta(s.Off, StateOccupied, tag)
	s.State = StateOccupied
	h.live[s.Off] = s
	h.stats.allocs++
	h.mu.Unlock()

	if err := h.d.Drain(); err != nil {
		return Null, err
	}
	return h.RefAt(s.PayloadOff()), nil
}

// Free releases an occupied allocation. The free state is durable when
// Free returns. The root and objects referenced by a pending batch cannot
// be freed.
func (h *Heap) Free(ref ObjectRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, err := h.lookupLocked(ref)
	if err != nil {
		return err
	}
	if err := freeable(ref, s); err != nil {
		return err
	}
	if h.pins[s.Off] != nil {
		return fmt.Errorf("%w: %s is referenced by a pending batch", ErrInvalidRef, ref)
	}

	h.setMeta(s.Off, StateFree, 0)
	if err := h.d.Drain(); err != nil {
		return err
	}
	delete(h.live, s.Off)
	h.coalesceLocked(s.Off, s.Size)
	h.stats.frees++
	return nil
}

// Resolve returns the payload of a reserved or occupied allocation.
// The slice aliases the mapping and is valid until the pool is closed.
func (h *Heap) Resolve(ref ObjectRef) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, err := h.lookupLocked(ref)
	if err != nil {
		return nil, err
	}
	return h.data[s.PayloadOff() : s.Off+s.Size], nil
}

// UsableSize returns the payload capacity of an allocation, which may
// exceed the requested size.
func (h *Heap) UsableSize(ref ObjectRef) (uint64, error) {
	s, err := h.Lookup(ref)
	if err != nil {
		return 0, err
	}
	return s.Usable(), nil
}

// TypeOf returns the type tag of an allocation.
func (h *Heap) TypeOf(ref ObjectRef) (TypeNum, error) {
	s, err := h.Lookup(ref)
	if err != nil {
		return 0, err
	}
	return s.Type, nil
}

// Lookup describes the live slot behind ref.
func (h *Heap) Lookup(ref ObjectRef) (SlotInfo, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lookupLocked(ref)
}

// ---- Reservation hooks for the action log ----

// Reserve carves a slot for size payload bytes and marks it reserved.
// The payload is zeroed and flushed but not drained; the reservation is
// invisible to iteration until Activate.
func (h *Heap) Reserve(size uint64, tag TypeNum) (SlotInfo, error) {
	need, err := h.slotSize(size)
	if err != nil {
		return SlotInfo{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reserveLocked(need, tag)
}

// Activate records that a published batch turned a reserved slot into an
// occupied one. The persisted meta word has already been written.
func (h *Heap) Activate(off uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.live[off]; ok && s.State == StateReserved {
		s.State = StateOccupied
		h.live[off] = s
		h.stats.allocs++
	}
}

// Release returns a reserved slot to the free lists (abandoned batch).
// The free state is flushed, not drained.
func (h *Heap) Release(off uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.live[off]; ok && s.State == StateReserved {
		h.releaseLocked(s)
	}
}

// Retire returns a slot freed by a published batch to the free lists.
// The persisted meta word has already been written.
func (h *Heap) Retire(off uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.live[off]; ok {
		delete(h.live, off)
		delete(h.pins, off)
		h.coalesceLocked(s.Off, s.Size)
		h.stats.frees++
	}
}

// ---- internals (mu held) ----

func (h *Heap) lookupLocked(ref ObjectRef) (SlotInfo, error) {
	if ref.IsNull() {
		return SlotInfo{}, fmt.Errorf("%w: null reference", ErrInvalidRef)
	}
	if ref.PoolID != h.id {
		return SlotInfo{}, fmt.Errorf("%w: %w: %s", ErrInvalidRef, ErrForeignRef, ref)
	}
	if ref.Off < h.start+hdr || ref.Off >= h.end {
		return SlotInfo{}, fmt.Errorf("%w: %s outside heap", ErrInvalidRef, ref)
	}
	s, ok := h.live[ref.Off-hdr]
	if !ok {
		return SlotInfo{}, fmt.Errorf("%w: no allocation at %s", ErrInvalidRef, ref)
	}
	return s, nil
}

func (h *Heap) reserveLocked(need uint64, tag TypeNum) (SlotInfo, error) {
	fs := h.free.bestFit(need)
	if fs == nil {
		return SlotInfo{}, fmt.Errorf("%w: need %d bytes, largest free slot %d",
			ErrOutOfSpace, need, h.free.largest())
	}
	off, size := fs.off, fs.size

	if rem := size - need; rem >= format.MinSlotSize {
		// The remainder header has to be durable before the slot shrinks,
		// or a crash could leave the shrunk slot followed by stale bytes.
		tail := off + need
		h.putSlot(tail, rem, StateFree, 0)
		if err := h.d.Drain(); err != nil {
			h.free.insert(off, size)
			return SlotInfo{}, err
		}
		h.unsettled = false
		h.setSize(off, need)
		h.free.insert(tail, rem)
		h.stats.splits++
		h.gen++
		size = need
	}

	// Zeroing the payload overwrites the headers of slots an earlier merge
	// swallowed; the merged size has to reach the device first.
	if h.unsettled {
		if err := h.d.Drain(); err != nil {
			h.free.insert(off, size)
			return SlotInfo{}, err
		}
		h.unsettled = false
	}

	h.setMeta(off, StateReserved, tag)
	payload := h.data[off+hdr : off+size]
	clear(payload)
	h.d.Flush(int64(off+hdr), int64(len(payload)))

	s := SlotInfo{Off: off, Size: size, State: StateReserved, Type: tag}
	h.live[off] = s
	return s, nil
}

func (h *Heap) releaseLocked(s SlotInfo) {
	h.setMeta(s.Off, StateFree, 0)
	delete(h.live, s.Off)
	h.coalesceLocked(s.Off, s.Size)
}

// coalesceLocked merges the free slot at off with free neighbours and
// indexes the result. Each merge is a single size-word store, so every
// intermediate state on the device is a valid heap as long as nothing
// inside the merged slot is overwritten before the store is drained.
func (h *Heap) coalesceLocked(off, size uint64) {
	if next, ok := h.free.byOff[off+size]; ok {
		h.free.remove(next)
		size += next.size
		h.setSize(off, size)
		h.stats.merges++
		h.gen++
		h.unsettled = true
	}
	if prev, ok := h.free.byEnd[off]; ok {
		h.free.remove(prev)
		off = prev.off
		size += prev.size
		h.setSize(off, size)
		h.stats.merges++
		h.gen++
		h.unsettled = true
	}
	h.free.insert(off, size)
}

func (h *Heap) readU64(off uint64) uint64 { return format.ReadU64(h.data, int(off)) }

func (h *Heap) setSize(off, size uint64) {
	format.PutU64(h.data, int(off+format.SlotSizeOffset), size)
	h.d.Flush(int64(off+format.SlotSizeOffset), 8)
}

func (h *Heap) setMeta(off uint64, state SlotState, tag TypeNum) {
	format.PutU64(h.data, int(off+format.SlotMetaOffset), format.Meta(state, uint32(tag)))
	h.d.Flush(int64(off+format.SlotMetaOffset), 8)
}

func (h *Heap) putSlot(off, size uint64, state SlotState, tag TypeNum) {
	format.PutU64(h.data, int(off+format.SlotSizeOffset), size)
	format.PutU64(h.data, int(off+format.SlotMetaOffset), format.Meta(state, uint32(tag)))
	h.d.Flush(int64(off), hdr)
}

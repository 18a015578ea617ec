package alloc

import "fmt"

// pin records the pending batches that queued actions against one live
// slot. A pinned slot cannot be freed directly, and a queued free is
// exclusive to one batch, so a commit never lands on a slot that was
// released and handed out again while the batch was being built.
type pin struct {
	refs   map[uint64]int // batch id -> queued actions on the slot
	freeBy uint64         // batch that queued the slot's free, 0 if none
}

func (pn *pin) others(batch uint64) bool {
	for id := range pn.refs {
		if id != batch {
			return true
		}
	}
	return false
}

// Pin marks the slot behind ref as referenced by a pending batch. With
// free set the slot must be occupied, must not be the root, and no other
// pending batch may reference it. Every Pin is undone by Unpin, or by
// Retire once the batch's free is published.
func (h *Heap) Pin(ref ObjectRef, batch uint64, free bool) (SlotInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, err := h.lookupLocked(ref)
	if err != nil {
		return SlotInfo{}, err
	}
	if free {
		if err := freeable(ref, s); err != nil {
			return SlotInfo{}, err
		}
	}

	pn := h.pins[s.Off]
	if pn != nil {
		if pn.freeBy != 0 && pn.freeBy != batch {
			return SlotInfo{}, fmt.Errorf("%w: %s is freed by another pending batch", ErrInvalidRef, ref)
		}
		if free && pn.others(batch) {
			return SlotInfo{}, fmt.Errorf("%w: %s is referenced by another pending batch", ErrInvalidRef, ref)
		}
	} else {
		pn = &pin{refs: make(map[uint64]int, 1)}
		h.pins[s.Off] = pn
	}
	pn.refs[batch]++
	if free {
		pn.freeBy = batch
	}
	return s, nil
}

// Unpin drops one reference batch holds on the slot at off.
func (h *Heap) Unpin(off, batch uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pn := h.pins[off]
	if pn == nil {
		return
	}
	if pn.refs[batch]--; pn.refs[batch] <= 0 {
		delete(pn.refs, batch)
		if pn.freeBy == batch {
			pn.freeBy = 0
		}
	}
	if len(pn.refs) == 0 {
		delete(h.pins, off)
	}
}

// freeable checks that s may be released: occupied and not the root.
func freeable(ref ObjectRef, s SlotInfo) error {
	if s.State != StateOccupied {
		return fmt.Errorf("%w: %s is %s", ErrInvalidRef, ref, s.State)
	}
	if s.Type == TypeRoot {
		return fmt.Errorf("%w: %s is the root object", ErrInvalidRef, ref)
	}
	return nil
}

package action

import (
	"errors"
	"fmt"

	"github.com/joshuapare/pmemkit/internal/buf"
	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/pool/alloc"
)

// BatchState is the lifecycle state of a Batch.
type BatchState int

const (
	BatchPending BatchState = iota
	BatchPublished
	BatchAbandoned
	// BatchFailed: Publish failed after the commit marker was stored. The
	// batch is committed on the device; the next open replays it.
	BatchFailed
)

func (s BatchState) String() string {
	switch s {
	case BatchPending:
		return "pending"
	case BatchPublished:
		return "published"
	case BatchAbandoned:
		return "abandoned"
	case BatchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Action is one deferred operation of a batch.
type Action struct {
	Record
	slot   uint64 // slot header offset of the alloc, free or set target
	pinned bool   // slot is pinned in the heap until the batch ends
}

// Batch collects actions that become visible together on Publish, or not
// at all. A Batch is used once: after Publish or Abandon every method
// returns ErrBatchDone.
//
// Objects a pending batch frees or sets fields of are pinned: the heap
// refuses to free them directly, and only one pending batch may free a
// given object.
type Batch struct {
	log     *Log
	id      uint64
	state   BatchState
	actions []Action
}

// State returns the batch state.
func (b *Batch) State() BatchState { return b.state }

// Len returns the number of records the batch will log.
func (b *Batch) Len() int { return len(b.actions) }

func (b *Batch) check(records int) error {
	if b.state != BatchPending {
		return fmt.Errorf("%w (%s)", ErrBatchDone, b.state)
	}
	if len(b.actions)+records > MaxActions {
		return fmt.Errorf("%w: %d records", ErrBatchFull, MaxActions)
	}
	return nil
}

// ReserveAlloc reserves size payload bytes tagged tag. The payload is
// zeroed and may be written through the heap's Resolve right away; flush
// those writes, the batch's Publish drains them. The allocation is
// invisible to iteration, and absent after a crash, until Publish.
func (b *Batch) ReserveAlloc(size uint64, tag alloc.TypeNum) (alloc.ObjectRef, error) {
	if err := b.check(1); err != nil {
		return alloc.Null, err
	}
	s, err := b.log.heap.Reserve(size, tag)
	if err != nil {
		return alloc.Null, err
	}
	b.actions = append(b.actions, Action{
		Record: Record{
			Kind: KindAlloc,
			Off:  s.Off + format.SlotMetaOffset,
			Val:  format.Meta(format.StateOccupied, uint32(tag)),
		},
		slot: s.Off,
	})
	return b.log.heap.RefAt(s.PayloadOff()), nil
}

// ReserveFree queues the release of an occupied allocation. The object
// stays resolvable and visible to iteration until Publish. The root, and
// objects another pending batch references, cannot be freed.
func (b *Batch) ReserveFree(ref alloc.ObjectRef) error {
	if err := b.check(1); err != nil {
		return err
	}
	for _, a := range b.actions {
		if a.Kind == KindFree && a.slot+format.SlotHeaderSize == ref.Off && ref.PoolID == b.log.heap.PoolID() {
			return fmt.Errorf("%w: %s", ErrDuplicateFree, ref)
		}
	}
	s, err := b.log.heap.Pin(ref, b.id, true)
	if err != nil {
		return err
	}
	b.actions = append(b.actions, Action{
		Record: Record{
			Kind: KindFree,
			Off:  s.Off + format.SlotMetaOffset,
			Val:  format.Meta(format.StateFree, 0),
		},
		slot:   s.Off,
		pinned: true,
	})
	return nil
}

// SetValue queues an 8-byte store of value at fieldOff inside ref's
// payload. ref must be occupied or reserved by this batch; fieldOff must
// be 8-byte aligned and inside the payload.
func (b *Batch) SetValue(ref alloc.ObjectRef, fieldOff, value uint64) error {
	if err := b.check(1); err != nil {
		return err
	}
	s, err := b.target(ref)
	if err != nil {
		return err
	}
	if fieldOff%8 != 0 || !buf.InRange(fieldOff, 8, s.Usable()) {
		return fmt.Errorf("%w: field %#x of %s (usable %d)", alloc.ErrInvalidRef, fieldOff, ref, s.Usable())
	}
	pinned, err := b.pin(ref, s)
	if err != nil {
		return err
	}
	b.actions = append(b.actions, Action{
		Record: Record{Kind: KindSet, Off: s.PayloadOff() + fieldOff, Val: value},
		slot:   s.Off,
		pinned: pinned,
	})
	return nil
}

// SetRoot queues the registration of ref as the pool's root object of
// the given size.
func (b *Batch) SetRoot(ref alloc.ObjectRef, size uint64) error {
	if err := b.check(2); err != nil {
		return err
	}
	s, err := b.target(ref)
	if err != nil {
		return err
	}
	pinned, err := b.pin(ref, s)
	if err != nil {
		return err
	}
	b.actions = append(b.actions,
		Action{Record: Record{Kind: KindSet, Off: format.RootOffsetOffset, Val: ref.Off}, slot: s.Off, pinned: pinned},
		Action{Record: Record{Kind: KindSet, Off: format.RootSizeOffset, Val: size}},
	)
	return nil
}

// pin pins an occupied set target. Reservations of this batch need no pin:
// nothing but the batch can release them.
func (b *Batch) pin(ref alloc.ObjectRef, s alloc.SlotInfo) (bool, error) {
	if s.State != alloc.StateOccupied {
		return false, nil
	}
	if _, err := b.log.heap.Pin(ref, b.id, false); err != nil {
		return false, err
	}
	return true, nil
}

// target resolves a SetValue target: occupied, or reserved by this batch.
func (b *Batch) target(ref alloc.ObjectRef) (alloc.SlotInfo, error) {
	s, err := b.log.heap.Lookup(ref)
	if err != nil {
		return alloc.SlotInfo{}, err
	}
	if s.State == alloc.StateReserved && !b.reserved(s.Off) {
		return alloc.SlotInfo{}, fmt.Errorf("%w: %s is reserved by another batch", alloc.ErrInvalidRef, ref)
	}
	return s, nil
}

func (b *Batch) reserved(slot uint64) bool {
	for _, a := range b.actions {
		if a.Kind == KindAlloc && a.slot == slot {
			return true
		}
	}
	return false
}

// Publish commits the batch. When Publish returns nil every action is
// durable and visible. A failure before the commit point abandons the
// batch; a failure after it leaves the batch committed on the device
// (state BatchFailed) and the pool must be reopened, which replays it.
func (b *Batch) Publish() error {
	if b.state != BatchPending {
		return fmt.Errorf("%w (%s)", ErrBatchDone, b.state)
	}
	if len(b.actions) == 0 {
		b.state = BatchPublished
		return nil
	}

	marked, err := b.log.commit(b.actions)
	if err != nil {
		if errors.Is(err, errCrashed) {
			b.state = BatchFailed
			return err
		}
		if marked {
			b.state = BatchFailed
			b.log.log.Warn("publish failed after commit point", "path", b.log.p.Path(),
				"records", len(b.actions), "error", err)
			return fmt.Errorf("publish: %w", err)
		}
		b.release()
		b.state = BatchAbandoned
		return fmt.Errorf("publish: %w", err)
	}

	heap := b.log.heap
	for _, a := range b.actions {
		switch {
		case a.Kind == KindAlloc:
			heap.Activate(a.slot)
		case a.Kind == KindFree:
			heap.Retire(a.slot)
		case a.pinned:
			heap.Unpin(a.slot, b.id)
		}
	}
	b.state = BatchPublished
	return nil
}

// Abandon discards the batch. Reserved allocations return to the heap;
// nothing is drained and no marker is written.
func (b *Batch) Abandon() error {
	if b.state != BatchPending {
		return fmt.Errorf("%w (%s)", ErrBatchDone, b.state)
	}
	b.release()
	b.state = BatchAbandoned
	return nil
}

func (b *Batch) release() {
	for _, a := range b.actions {
		switch {
		case a.Kind == KindAlloc:
			b.log.heap.Release(a.slot)
		case a.pinned:
			b.log.heap.Unpin(a.slot, b.id)
		}
	}
}

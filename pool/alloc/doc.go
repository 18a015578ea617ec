// Package alloc is the persistent heap allocator of a pool.
//
// # Overview
//
// The heap is a contiguous sequence of slots between the pool header and
// the end of the pool. Every slot starts with a 16-byte header holding its
// size and a meta word (state in the low byte, type tag in the high 32
// bits). Slots are free, reserved or occupied. Allocations are named by
// ObjectRef, the pool id plus the payload offset, so references stored in
// the pool stay valid across restarts.
//
// # Usage Example
//
//	tr := persist.NewTracker(p)
//	h, err := alloc.NewHeap(p, tr, nil)
//	if err != nil {
//	    return err
//	}
//
//	ref, err := h.Alloc(64, typeAccount, func(buf []byte, arg any) error {
//	    copy(buf, arg.(string))
//	    return nil
//	}, "Julius Caesar")
//
//	buf, err := h.Resolve(ref)
//
// # Size Classes
//
// Free slots are kept in min-heaps, one per size class, giving best-fit
// placement. A slot is split when the remainder can hold a minimum slot
// (32 bytes); adjacent free slots are merged on free.
//
// # Crash Consistency
//
// Every header change is a single aligned 8-byte store, ordered with the
// flush/drain primitives of package pool/persist so that any prefix of the
// stores reaching the device leaves a walkable heap. NewHeap audits the
// heap on open: reserved slots left by a crashed process become free and
// adjacent free slots are merged.
//
// Reserve, Activate, Release and Retire are the hooks package pool/action
// uses to stage allocations and frees that only take effect on publish.
package alloc

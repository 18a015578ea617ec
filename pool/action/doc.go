// Package action implements reserve/publish: a group of allocations,
// frees and 8-byte field updates that becomes durable as one unit.
//
// # Protocol
//
// Actions are staged in a Batch. ReserveAlloc carves and zeroes a slot
// right away but leaves it reserved; ReserveFree and SetValue only record
// what to do. Publish then:
//
//  1. writes one log record per action into the header page and flushes them
//  2. drains, which also covers the caller's payload writes
//  3. stores the commit marker (the record count) and flushes it
//  4. drains: the batch is now committed
//  5. applies every record as an 8-byte store, flushing each
//  6. drains
//  7. clears the marker and persists it
//
// A crash before step 4 completes leaves the marker clear: the records are
// ignored and the heap audit frees the reservations. A crash after it
// leaves the marker set: Recover applies every record again and clears the
// marker. Records are absolute stores, so replaying them any number of
// times gives the same result.
//
// # Usage Example
//
//	b := lg.NewBatch()
//	a, err := b.ReserveAlloc(40, typeAccount)
//	if err != nil {
//	    return err
//	}
//	buf, _ := heap.Resolve(a)
//	copy(buf, "Julius Caesar")
//	tracker.Flush(int64(a.Off), 40)
//	if err := b.Publish(); err != nil {
//	    return err
//	}
package action

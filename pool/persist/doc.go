// Package persist implements the flush/drain discipline every durable
// update in a pool goes through.
//
// Flush records a byte range as written. It does no I/O and gives no
// ordering guarantee. Drain pushes every recorded range through the pool's
// mapper, coalesced to page boundaries, and then issues the barrier chosen
// by the pool's FlushMode. Once Drain returns nil, every store that was
// flushed before the call is durable and ordered before any store made
// after it. Persist is Flush followed by Drain.
//
// A failed Drain poisons the Tracker: the state of the recorded ranges on
// the device is unknown, so every later Drain fails with ErrPoisoned until
// the pool is reopened.
package persist

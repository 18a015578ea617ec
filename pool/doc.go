// Package pool maps a pool file into memory and owns its header page.
//
// # File Structure
//
//	[Header - 4KB] [slot] [slot] ... [slot]
//
// The header holds the immutable identity of the pool (magic, version, size,
// pool id, layout tag, checksum) followed by three mutable areas: the root
// words, the action log commit marker and the action log records. The heap
// that follows is managed by package pool/alloc; the log is managed by
// package pool/action.
//
// # Opening a Pool
//
//	p, err := pool.Create("/mnt/pmem/accounts", "bank", 64<<20, 0o600, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
// Open checks the magic, checksum, size and layout tag. It does not run
// recovery; most callers want package pkg/obj, which opens the pool, replays
// an interrupted commit and audits the heap before handing out a Store.
//
// # Durability
//
// Stores into Bytes are ordinary memory writes. FlushRange writes back a
// range of the mapping and Sync issues the barrier chosen by FlushMode.
// Package pool/persist batches ranges into the flush/drain discipline the
// higher layers rely on.
package pool

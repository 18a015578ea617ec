/*
Package obj is the public API of pmemkit: a persistent object store in a
memory-mapped pool file.

# Quick Start

	s, err := obj.Create("/mnt/pmem/rweg", "rweg", obj.MinPoolSize, 0o600, nil)
	if err != nil {
	    log.Fatal(err)
	}
	defer s.Close()

	root, err := s.Root(64)
	buf, err := s.Direct(root)
	copy(buf, "Hello, persistent world")
	err = s.Persist(root, 0, 64)

# Objects

Objects are named by ObjectRef, which stays valid across restarts. Alloc
takes an init callback that fills the zeroed payload before the object
becomes visible; Free releases it. ForEach and Objects walk every object of
a type tag.

# Atomic Batches

NewBatch stages allocations, frees and 8-byte field updates that become
durable together:

	b := s.NewBatch()
	acc, err := b.ReserveAlloc(24, typeAccount)
	buf, _ := s.Direct(acc)
	// fill buf ...
	s.Flush(acc, 0, 24)
	err = b.Publish()

After a crash an unpublished batch leaves no trace, and a published one
is complete: Open replays an interrupted commit before returning.

# Error Handling

All errors wrap the sentinels re-exported here (ErrOutOfSpace,
ErrInvalidRef, ErrCorruptHeader, ...); test them with errors.Is.
*/
package obj

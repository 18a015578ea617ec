package obj

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/pmemkit/internal/buf"
	"github.com/joshuapare/pmemkit/pool"
	"github.com/joshuapare/pmemkit/pool/action"
	"github.com/joshuapare/pmemkit/pool/alloc"
	"github.com/joshuapare/pmemkit/pool/persist"
)

// Store is an open pool with its heap and action log.
//
// Store methods are safe for concurrent use. Publish calls are serialized
// internally; callers that need isolation between read-modify-write
// sequences still have to provide it.
type Store struct {
	p    *pool.Pool
	tr   *persist.Tracker
	heap *alloc.Heap
	log  *action.Log

	rootMu   sync.Mutex
	recovery action.RecoveryResult
	closed   atomic.Bool
}

// Create creates a pool file and formats its heap.
func Create(path, layout string, size int64, perm os.FileMode, opts *Options) (*Store, error) {
	p, err := pool.Create(path, layout, size, perm, opts.poolOptions())
	if err != nil {
		return nil, err
	}
	return attach(p, opts)
}

// Open opens a pool file, finishes any interrupted commit, and audits the
// heap. A failed recovery fails Open; reopening retries it.
func Open(path, layout string, opts *Options) (*Store, error) {
	p, err := pool.Open(path, layout, opts.poolOptions())
	if err != nil {
		return nil, err
	}
	return attach(p, opts)
}

func attach(p *pool.Pool, opts *Options) (*Store, error) {
	tr := persist.NewTracker(p)

	rec, err := action.Recover(p, tr)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("recovery: %w", err)
	}
	heap, err := alloc.NewHeap(p, tr, opts.sizeClasses())
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	lg, err := action.NewLog(p, heap, tr)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return &Store{p: p, tr: tr, heap: heap, log: lg, recovery: rec}, nil
}

// Close closes the pool. Closing twice is a no-op.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.p.Close()
}

func (s *Store) check() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pool.Pool { return s.p }

// Heap returns the underlying allocator.
func (s *Store) Heap() *alloc.Heap { return s.heap }

// Recovery reports what Open's recovery pass did.
func (s *Store) Recovery() action.RecoveryResult { return s.recovery }

// Root returns the pool's root object, allocating a zeroed one of size
// bytes on first use. Later calls must pass the same size.
func (s *Store) Root(size uint64) (ObjectRef, error) {
	if err := s.check(); err != nil {
		return Null, err
	}
	if size == 0 {
		return Null, fmt.Errorf("%w: root size 0", ErrInvalidSize)
	}

	s.rootMu.Lock()
	defer s.rootMu.Unlock()

	if off := s.p.RootOffset(); off != 0 {
		if have := s.p.RootSize(); have != size {
			return Null, fmt.Errorf("%w: root has %d bytes, asked for %d", ErrSizeMismatch, have, size)
		}
		return s.heap.RefAt(off), nil
	}

	b := s.log.NewBatch()
	ref, err := b.ReserveAlloc(size, TypeRoot)
	if err != nil {
		return Null, err
	}
	if err := b.SetRoot(ref, size); err != nil {
		_ = b.Abandon()
		return Null, err
	}
	if err := b.Publish(); err != nil {
		return Null, err
	}
	return ref, nil
}

// Alloc allocates size bytes tagged tag and runs init on the zeroed
// payload before the object becomes visible. init may be nil.
func (s *Store) Alloc(size uint64, tag TypeNum, init InitFunc, arg any) (ObjectRef, error) {
	if err := s.check(); err != nil {
		return Null, err
	}
	return s.heap.Alloc(size, tag, init, arg)
}

// Free releases an object.
func (s *Store) Free(ref ObjectRef) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.heap.Free(ref)
}

// Direct returns the payload of ref. The slice aliases the pool and is
// valid until Close. Writes through it are not durable until flushed and
// drained (Persist) or published as part of a batch (Flush).
func (s *Store) Direct(ref ObjectRef) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.heap.Resolve(ref)
}

// UsableSize returns the payload capacity of ref.
func (s *Store) UsableSize(ref ObjectRef) (uint64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.heap.UsableSize(ref)
}

// TypeOf returns the type tag of ref.
func (s *Store) TypeOf(ref ObjectRef) (TypeNum, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.heap.TypeOf(ref)
}

// ForEach visits every object tagged tag in pool order.
func (s *Store) ForEach(tag TypeNum, fn func(ref ObjectRef) error) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.heap.ForEach(tag, fn)
}

// Objects returns an iterator over the objects tagged tag. After Close the
// iterator's Next returns ErrClosed.
func (s *Store) Objects(tag TypeNum) *ObjectIterator {
	return s.heap.Objects(tag)
}

// NewBatch starts an atomic batch.
func (s *Store) NewBatch() *Batch {
	return s.log.NewBatch()
}

// Flush records a payload write of [off, off+length) inside ref without
// draining it. Use it for writes into batch reservations; Publish drains.
func (s *Store) Flush(ref ObjectRef, off, length uint64) error {
	abs, err := s.payloadRange(ref, off, length)
	if err != nil {
		return err
	}
	s.tr.Flush(int64(abs), int64(length))
	return nil
}

// Persist makes a payload write of [off, off+length) inside ref durable.
func (s *Store) Persist(ref ObjectRef, off, length uint64) error {
	abs, err := s.payloadRange(ref, off, length)
	if err != nil {
		return err
	}
	return s.tr.Persist(int64(abs), int64(length))
}

func (s *Store) payloadRange(ref ObjectRef, off, length uint64) (uint64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	info, err := s.heap.Lookup(ref)
	if err != nil {
		return 0, err
	}
	if !buf.InRange(off, length, info.Usable()) {
		return 0, fmt.Errorf("%w: range [%d,+%d) outside %d-byte payload of %s",
			ErrInvalidRef, off, length, info.Usable(), ref)
	}
	return info.PayloadOff() + off, nil
}

// Stats is a snapshot of a store.
type Stats struct {
	Heap     alloc.Stats
	Persist  persist.Stats
	Sequence uint64 // batches committed over the pool's life
	PoolSize int64
	IsPMEM   bool
}

// Stats returns a snapshot of the store.
func (s *Store) Stats() Stats {
	return Stats{
		Heap:     s.heap.Stats(),
		Persist:  s.tr.Stats(),
		Sequence: s.log.Sequence(),
		PoolSize: s.p.Size(),
		IsPMEM:   s.p.IsPMEM(),
	}
}

// Verify checks the persisted heap against the allocator's view of it.
func (s *Store) Verify() error {
	if err := s.check(); err != nil {
		return err
	}
	if s.p.Marker() != 0 {
		return fmt.Errorf("%w: commit marker set", ErrCorruptLog)
	}
	if root := s.p.RootOffset(); root != 0 {
		t, err := s.heap.TypeOf(s.heap.RefAt(root))
		if err != nil {
			return fmt.Errorf("root: %w", err)
		}
		if t != TypeRoot {
			return fmt.Errorf("%w: root object has type %#x", ErrCorruptHeap, uint32(t))
		}
	}
	return s.heap.Verify()
}

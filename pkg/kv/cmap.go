package kv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/joshuapare/pmemkit/internal/buf"
	"github.com/joshuapare/pmemkit/pkg/obj"
)

const (
	defaultLayout  = "pmemkv"
	defaultBuckets = 1024
	maxBuckets     = 1 << 24

	typeEntry   obj.TypeNum = 1
	typeBuckets obj.TypeNum = 2
)

// Root object of a cmap pool.
const (
	rootBucketsRef = 0                            // obj.ObjectRef of the bucket array
	rootNBuckets   = rootBucketsRef + obj.RefSize // bucket count
	rootCount      = rootNBuckets + 8             // stored pairs
	rootSize       = rootCount + 8
)

// Entry object: a chain link followed by the key and value bytes. Links
// are payload offsets in the same pool so that one SetValue relinks them.
const (
	entryNext   = 0
	entryHash   = 8
	entryKeyLen = 16
	entryValLen = 20
	entryHeader = 24
)

// cmap is a chained hash map inside an obj.Store.
type cmap struct {
	mu       sync.RWMutex
	store    *obj.Store
	root     obj.ObjectRef
	buckets  obj.ObjectRef
	nbuckets uint64
}

func openCMap(cfg *Config) (Engine, error) {
	path, err := cfg.GetString(KeyPath)
	if err != nil {
		return nil, err
	}
	layout, err := cfg.stringOr(KeyLayout, defaultLayout)
	if err != nil {
		return nil, err
	}
	force, err := cfg.flag(KeyForceCreate)
	if err != nil {
		return nil, err
	}
	missing, err := cfg.flag(KeyCreateIfMissing)
	if err != nil {
		return nil, err
	}
	nb, err := cfg.uint64Or(KeyBuckets, defaultBuckets)
	if err != nil {
		return nil, err
	}
	if nb == 0 || nb > maxBuckets {
		return nil, fmt.Errorf("%w: %q must be in [1, %d]", ErrConfig, KeyBuckets, maxBuckets)
	}

	create := func() (*obj.Store, error) {
		size, err := cfg.GetUint64(KeySize)
		if err != nil {
			return nil, err
		}
		return obj.Create(path, layout, int64(size), 0o644, nil)
	}

	var s *obj.Store
	switch {
	case force:
		s, err = create()
	case missing:
		s, err = obj.Open(path, layout, nil)
		if errors.Is(err, obj.ErrNotFound) {
			s, err = create()
		}
	default:
		s, err = obj.Open(path, layout, nil)
	}
	if err != nil {
		return nil, err
	}

	m, err := attachCMap(s, nb)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return m, nil
}

// attachCMap loads the map rooted in s, building an empty one with nb
// buckets on a fresh pool.
func attachCMap(s *obj.Store, nb uint64) (*cmap, error) {
	root, err := s.Root(rootSize)
	if err != nil {
		return nil, err
	}
	rb, err := s.Direct(root)
	if err != nil {
		return nil, err
	}

	m := &cmap{store: s, root: root}
	m.buckets = obj.DecodeRef(rb[rootBucketsRef:])
	m.nbuckets = binary.LittleEndian.Uint64(rb[rootNBuckets:])
	if !m.buckets.IsNull() {
		if err := m.checkBuckets(); err != nil {
			return nil, err
		}
		return m, nil
	}

	b := s.NewBatch()
	arr, err := b.ReserveAlloc(nb*8, typeBuckets)
	if err != nil {
		return nil, err
	}
	steps := []struct{ off, val uint64 }{
		{rootBucketsRef, arr.PoolID},
		{rootBucketsRef + 8, arr.Off},
		{rootNBuckets, nb},
	}
	for _, st := range steps {
		if err := b.SetValue(root, st.off, st.val); err != nil {
			_ = b.Abandon()
			return nil, err
		}
	}
	if err := b.Publish(); err != nil {
		return nil, err
	}
	m.buckets, m.nbuckets = arr, nb
	return m, nil
}

func (m *cmap) checkBuckets() error {
	t, err := m.store.TypeOf(m.buckets)
	if err != nil {
		return fmt.Errorf("%w: bucket array: %w", ErrCorrupt, err)
	}
	n, err := m.store.UsableSize(m.buckets)
	if err != nil {
		return err
	}
	if t != typeBuckets || m.nbuckets == 0 {
		return fmt.Errorf("%w: bucket array %s (type %d, %d buckets)", ErrCorrupt, m.buckets, t, m.nbuckets)
	}
	if _, err := buf.CheckTableBounds(n, 0, m.nbuckets, 8); err != nil {
		return fmt.Errorf("%w: bucket array %s: %w", ErrCorrupt, m.buckets, err)
	}
	return nil
}

func (m *cmap) ref(off uint64) obj.ObjectRef {
	return obj.ObjectRef{PoolID: m.root.PoolID, Off: off}
}

func (m *cmap) bucketArray() ([]byte, error) {
	return m.store.Direct(m.buckets)
}

// entry is a decoded view of an entry object. key and val alias the pool.
type entry struct {
	ref  obj.ObjectRef
	next uint64
	key  []byte
	val  []byte
}

func (m *cmap) entryAt(off uint64) (entry, error) {
	ref := m.ref(off)
	b, err := m.store.Direct(ref)
	if err != nil {
		return entry{}, fmt.Errorf("%w: chain link %#x: %w", ErrCorrupt, off, err)
	}
	if len(b) < entryHeader {
		return entry{}, fmt.Errorf("%w: short entry %s", ErrCorrupt, ref)
	}
	kl := uint64(binary.LittleEndian.Uint32(b[entryKeyLen:]))
	vl := uint64(binary.LittleEndian.Uint32(b[entryValLen:]))
	key, ok := buf.Slice(b, entryHeader, kl)
	if !ok {
		return entry{}, fmt.Errorf("%w: key of %s overruns its payload", ErrCorrupt, ref)
	}
	val, ok := buf.Slice(b, entryHeader+kl, vl)
	if !ok {
		return entry{}, fmt.Errorf("%w: value of %s overruns its payload", ErrCorrupt, ref)
	}
	return entry{
		ref:  ref,
		next: binary.LittleEndian.Uint64(b[entryNext:]),
		key:  key,
		val:  val,
	}, nil
}

// find walks key's chain. It returns the bucket index, the matching entry
// (zero ref when absent) and the offset of the link that points at it:
// the predecessor entry's payload, or 0 for the bucket slot itself.
func (m *cmap) find(key []byte) (idx uint64, e entry, prev uint64, err error) {
	h := xxhash.Sum64(key)
	idx = h % m.nbuckets
	arr, err := m.bucketArray()
	if err != nil {
		return 0, entry{}, 0, err
	}
	for off := binary.LittleEndian.Uint64(arr[idx*8:]); off != 0; {
		cur, err := m.entryAt(off)
		if err != nil {
			return 0, entry{}, 0, err
		}
		if bytes.Equal(cur.key, key) {
			return idx, cur, prev, nil
		}
		prev, off = off, cur.next
	}
	return idx, entry{}, 0, nil
}

func (m *cmap) count() uint64 {
	rb, err := m.store.Direct(m.root)
	if err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(rb[rootCount:])
}

// link queues the store that makes the chain point at target instead of
// the entry after prev.
func (m *cmap) link(b *obj.Batch, idx, prev, target uint64) error {
	if prev == 0 {
		return b.SetValue(m.buckets, idx*8, target)
	}
	return b.SetValue(m.ref(prev), entryNext, target)
}

func (m *cmap) Put(key, value []byte) error {
	if uint64(len(key)) > 1<<32-1 || uint64(len(value)) > 1<<32-1 {
		return fmt.Errorf("%w: key or value over 4 GiB", obj.ErrInvalidSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx, old, prev, err := m.find(key)
	if err != nil {
		return err
	}

	b := m.store.NewBatch()
	if err := m.stage(b, idx, prev, old, key, value); err != nil {
		_ = b.Abandon()
		return err
	}
	return b.Publish()
}

// stage reserves and writes the new entry for key, then queues the link
// that makes it reachable. A replaced entry keeps its chain position and
// is freed in the same batch; a new key goes to the head of its bucket.
func (m *cmap) stage(b *obj.Batch, idx, prev uint64, old entry, key, value []byte) error {
	size := uint64(entryHeader + len(key) + len(value))
	ne, err := b.ReserveAlloc(size, typeEntry)
	if err != nil {
		return err
	}
	payload, err := m.store.Direct(ne)
	if err != nil {
		return err
	}

	next := old.next
	if old.ref.IsNull() {
		arr, err := m.bucketArray()
		if err != nil {
			return err
		}
		next, prev = binary.LittleEndian.Uint64(arr[idx*8:]), 0
	}
	binary.LittleEndian.PutUint64(payload[entryNext:], next)
	binary.LittleEndian.PutUint64(payload[entryHash:], xxhash.Sum64(key))
	binary.LittleEndian.PutUint32(payload[entryKeyLen:], uint32(len(key)))
	binary.LittleEndian.PutUint32(payload[entryValLen:], uint32(len(value)))
	copy(payload[entryHeader:], key)
	copy(payload[entryHeader+len(key):], value)
	if err := m.store.Flush(ne, 0, size); err != nil {
		return err
	}

	if err := m.link(b, idx, prev, ne.Off); err != nil {
		return err
	}
	if !old.ref.IsNull() {
		return b.ReserveFree(old.ref)
	}
	return b.SetValue(m.root, rootCount, m.count()+1)
}

func (m *cmap) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, e, _, err := m.find(key)
	if err != nil {
		return nil, err
	}
	if e.ref.IsNull() {
		return nil, ErrNotFound
	}
	return bytes.Clone(e.val), nil
}

func (m *cmap) Remove(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, e, prev, err := m.find(key)
	if err != nil {
		return err
	}
	if e.ref.IsNull() {
		return ErrNotFound
	}

	b := m.store.NewBatch()
	err = m.link(b, idx, prev, e.next)
	if err == nil {
		err = b.ReserveFree(e.ref)
	}
	if err == nil {
		err = b.SetValue(m.root, rootCount, m.count()-1)
	}
	if err != nil {
		_ = b.Abandon()
		return err
	}
	return b.Publish()
}

func (m *cmap) GetAll(fn func(key, value []byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	arr, err := m.bucketArray()
	if err != nil {
		return err
	}
	for i := range m.nbuckets {
		for off := binary.LittleEndian.Uint64(arr[i*8:]); off != 0; {
			e, err := m.entryAt(off)
			if err != nil {
				return err
			}
			if err := fn(e.key, e.val); err != nil {
				return err
			}
			off = e.next
		}
	}
	return nil
}

func (m *cmap) CountAll() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int(m.count()), nil
}

func (m *cmap) Close() error {
	return m.store.Close()
}

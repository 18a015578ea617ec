package action

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/internal/powercut"
	"github.com/joshuapare/pmemkit/pool"
	"github.com/joshuapare/pmemkit/pool/alloc"
	"github.com/joshuapare/pmemkit/pool/persist"
)

const (
	layout = "bank"

	typeName    alloc.TypeNum = 0
	typeAccount alloc.TypeNum = 1

	// account: name ObjectRef, then balance.
	balanceOff  = alloc.RefSize
	accountSize = alloc.RefSize + 8
)

type env struct {
	path string
	m    *powercut.Mapper
	p    *pool.Pool
	tr   *persist.Tracker
	heap *alloc.Heap
	log  *Log
	rec  RecoveryResult
}

func newEnv(t *testing.T) *env {
	t.Helper()
	path := filepath.Join(t.TempDir(), "balance")
	p, err := pool.Create(path, layout, pool.MinPoolSize, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	e, err := openEnv(t, path)
	require.NoError(t, err)
	return e
}

// openEnv opens a pool the way a store does: recovery, audit, log.
func openEnv(t *testing.T, path string) (*env, error) {
	t.Helper()
	m := powercut.New()
	p, err := pool.Open(path, layout, &pool.Options{Mapper: m})
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { _ = p.Close() })

	tr := persist.NewTracker(p)
	rec, err := Recover(p, tr)
	if err != nil {
		return nil, err
	}
	heap, err := alloc.NewHeap(p, tr, nil)
	if err != nil {
		return nil, err
	}
	lg, err := NewLog(p, heap, tr)
	if err != nil {
		return nil, err
	}
	return &env{path: path, m: m, p: p, tr: tr, heap: heap, log: lg, rec: rec}, nil
}

// restart simulates the process dying: the mapping is dropped without any
// further stores and the pool is opened again.
func (e *env) restart(t *testing.T) *env {
	t.Helper()
	crashHook = nil
	require.NoError(t, e.p.Close())
	e2, err := openEnv(t, e.path)
	require.NoError(t, err)
	return e2
}

// requireCutsRecover cuts power at this point in every way the mapper
// offers. Every image must open, and check must accept what it recovers to.
func (e *env) requireCutsRecover(t *testing.T, check func(t *testing.T, e *env)) {
	t.Helper()
	crashHook = nil
	cuts, err := e.m.Cuts()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "cut")
	for _, c := range cuts {
		t.Run(c.Name, func(t *testing.T) {
			require.NoError(t, c.Write(path))
			e2, err := openEnv(t, path)
			require.NoError(t, err)
			check(t, e2)
			require.NoError(t, e2.heap.Verify())
			require.NoError(t, e2.p.Close())
		})
	}
}

func crashWhen(t *testing.T, stage Stage, idx int) {
	t.Helper()
	crashHook = func(s Stage, i int) bool { return s == stage && i == idx }
	t.Cleanup(func() { crashHook = nil })
}

func (e *env) newAccount(t *testing.T, name string, deposit uint64) alloc.ObjectRef {
	t.Helper()
	b := e.log.NewBatch()
	acc := e.stageAccount(t, b, name, deposit)
	require.NoError(t, b.Publish())
	return acc
}

func (e *env) stageAccount(t *testing.T, b *Batch, name string, deposit uint64) alloc.ObjectRef {
	t.Helper()
	n := uint64(len(name) + 1)
	str, err := b.ReserveAlloc(n, typeName)
	require.NoError(t, err)
	buf, err := e.heap.Resolve(str)
	require.NoError(t, err)
	copy(buf, name)
	e.tr.Flush(int64(str.Off), int64(n))

	acc, err := b.ReserveAlloc(accountSize, typeAccount)
	require.NoError(t, err)
	abuf, err := e.heap.Resolve(acc)
	require.NoError(t, err)
	str.Encode(abuf)
	binary.LittleEndian.PutUint64(abuf[balanceOff:], deposit)
	e.tr.Flush(int64(acc.Off), accountSize)
	return acc
}

func (e *env) balance(t *testing.T, acc alloc.ObjectRef) uint64 {
	t.Helper()
	buf, err := e.heap.Resolve(acc)
	require.NoError(t, err)
	return binary.LittleEndian.Uint64(buf[balanceOff:])
}

func (e *env) name(t *testing.T, acc alloc.ObjectRef) string {
	t.Helper()
	buf, err := e.heap.Resolve(acc)
	require.NoError(t, err)
	s, err := e.heap.Resolve(alloc.DecodeRef(buf))
	require.NoError(t, err)
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}

func (e *env) accounts(t *testing.T) []alloc.ObjectRef {
	t.Helper()
	var out []alloc.ObjectRef
	require.NoError(t, e.heap.ForEach(typeAccount, func(r alloc.ObjectRef) error {
		out = append(out, r)
		return nil
	}))
	return out
}

func (e *env) transfer(t *testing.T, from, to alloc.ObjectRef, amount uint64) *Batch {
	t.Helper()
	b := e.log.NewBatch()
	require.NoError(t, b.SetValue(from, balanceOff, e.balance(t, from)-amount))
	require.NoError(t, b.SetValue(to, balanceOff, e.balance(t, to)+amount))
	return b
}

func TestBank(t *testing.T) {
	e := newEnv(t)

	a := e.newAccount(t, "Julius Caesar", 100)
	b := e.newAccount(t, "Mark Anthony", 50)

	assert.Equal(t, []alloc.ObjectRef{a, b}, e.accounts(t))
	assert.Equal(t, "Julius Caesar", e.name(t, a))
	assert.Equal(t, "Mark Anthony", e.name(t, b))
	assert.Equal(t, uint64(100), e.balance(t, a))
	assert.Equal(t, uint64(50), e.balance(t, b))

	require.NoError(t, e.transfer(t, a, b, 42).Publish())
	assert.Equal(t, uint64(58), e.balance(t, a))
	assert.Equal(t, uint64(92), e.balance(t, b))
	assert.Equal(t, uint64(3), e.log.Sequence())

	e = e.restart(t)
	assert.Zero(t, e.rec.Replayed)
	assert.Equal(t, []alloc.ObjectRef{a, b}, e.accounts(t))
	assert.Equal(t, uint64(58), e.balance(t, a))
	assert.Equal(t, uint64(92), e.balance(t, b))
	assert.Equal(t, "Julius Caesar", e.name(t, a))
	require.NoError(t, e.heap.Verify())
}

func TestBank_OneBatch(t *testing.T) {
	e := newEnv(t)

	batch := e.log.NewBatch()
	a := e.stageAccount(t, batch, "Julius Caesar", 100)
	b := e.stageAccount(t, batch, "Mark Anthony", 50)
	assert.Empty(t, e.accounts(t), "reservations are invisible before publish")
	require.NoError(t, batch.Publish())
	assert.Equal(t, BatchPublished, batch.State())
	assert.Equal(t, []alloc.ObjectRef{a, b}, e.accounts(t))
}

func TestPublish_CrashAfterCommit(t *testing.T) {
	stages := []struct {
		name  string
		stage Stage
		idx   int
	}{
		{"committed", StageCommitted, 0},
		{"first record applied", StageApplying, 1},
		{"all applied", StageApplied, 0},
	}
	for _, tt := range stages {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			a := e.newAccount(t, "Julius Caesar", 100)
			b := e.newAccount(t, "Mark Anthony", 50)

			batch := e.transfer(t, a, b, 42)
			crashWhen(t, tt.stage, tt.idx)
			require.ErrorIs(t, batch.Publish(), errCrashed)
			assert.Equal(t, BatchFailed, batch.State())
			assert.Equal(t, uint64(2), e.p.Marker())

			e = e.restart(t)
			assert.Equal(t, 2, e.rec.Replayed)
			assert.Zero(t, e.p.Marker())
			assert.Equal(t, uint64(58), e.balance(t, a))
			assert.Equal(t, uint64(92), e.balance(t, b))
		})
	}
}

func TestPublish_CrashAfterCommit_Allocations(t *testing.T) {
	e := newEnv(t)

	batch := e.log.NewBatch()
	a := e.stageAccount(t, batch, "Julius Caesar", 100)
	crashWhen(t, StageApplying, 0)
	require.ErrorIs(t, batch.Publish(), errCrashed)

	e = e.restart(t)
	assert.Equal(t, 2, e.rec.Replayed)
	assert.Equal(t, []alloc.ObjectRef{a}, e.accounts(t))
	assert.Equal(t, "Julius Caesar", e.name(t, a))
	assert.Equal(t, uint64(100), e.balance(t, a))
	require.NoError(t, e.heap.Verify())
}

func TestPublish_CrashBeforeCommit(t *testing.T) {
	e := newEnv(t)
	a := e.newAccount(t, "Julius Caesar", 100)
	before := e.heap.Stats()

	batch := e.log.NewBatch()
	e.stageAccount(t, batch, "Mark Anthony", 50)
	crashWhen(t, StageLogged, 0)
	require.ErrorIs(t, batch.Publish(), errCrashed)
	assert.Zero(t, e.p.Marker())

	e = e.restart(t)
	assert.Zero(t, e.rec.Replayed)
	assert.Equal(t, []alloc.ObjectRef{a}, e.accounts(t))

	after := e.heap.Stats()
	assert.Equal(t, before.FreeBytes, after.FreeBytes)
	assert.Equal(t, before.FreeSlots, after.FreeSlots)
	assert.Equal(t, before.PerType, after.PerType)
	assert.Zero(t, after.ReservedSlots)
	require.NoError(t, e.heap.Verify())
}

func TestPublish_CrashBeforeCommit_SetValue(t *testing.T) {
	e := newEnv(t)
	a := e.newAccount(t, "Julius Caesar", 100)
	b := e.newAccount(t, "Mark Anthony", 50)

	crashWhen(t, StageLogged, 0)
	require.ErrorIs(t, e.transfer(t, a, b, 42).Publish(), errCrashed)

	e = e.restart(t)
	assert.Equal(t, uint64(100), e.balance(t, a))
	assert.Equal(t, uint64(50), e.balance(t, b))
}

func TestRecover_Idempotent(t *testing.T) {
	e := newEnv(t)
	a := e.newAccount(t, "Julius Caesar", 100)
	b := e.newAccount(t, "Mark Anthony", 50)
	old := e.accounts(t)

	// One batch that frees B's account, moves its money to A and opens C.
	batch := e.log.NewBatch()
	require.NoError(t, batch.SetValue(a, balanceOff, 150))
	require.NoError(t, batch.ReserveFree(b))
	c := e.stageAccount(t, batch, "Cleopatra", 7)
	crashWhen(t, StageCommitted, 0)
	require.ErrorIs(t, batch.Publish(), errCrashed)
	require.NoError(t, e.p.Close())

	// Recovery itself dies half way through.
	p, err := pool.Open(e.path, layout, nil)
	require.NoError(t, err)
	crashWhen(t, StageReplaying, 2)
	_, err = Recover(p, persist.NewTracker(p))
	require.ErrorIs(t, err, errCrashed)
	require.NoError(t, p.Close())

	// And again, at a different record.
	p, err = pool.Open(e.path, layout, nil)
	require.NoError(t, err)
	crashWhen(t, StageReplaying, 3)
	_, err = Recover(p, persist.NewTracker(p))
	require.ErrorIs(t, err, errCrashed)
	require.NoError(t, p.Close())

	crashHook = nil
	e2, err := openEnv(t, e.path)
	require.NoError(t, err)
	assert.Equal(t, batch.Len(), e2.rec.Replayed)

	assert.Equal(t, []alloc.ObjectRef{a, c}, e2.accounts(t))
	assert.NotEqual(t, old, e2.accounts(t))
	assert.Equal(t, uint64(150), e2.balance(t, a))
	assert.Equal(t, uint64(7), e2.balance(t, c))
	assert.Equal(t, "Cleopatra", e2.name(t, c))
	_, err = e2.heap.Resolve(b)
	require.ErrorIs(t, err, alloc.ErrInvalidRef)

	// A clean log replays nothing.
	rec, err := Recover(e2.p, e2.tr)
	require.NoError(t, err)
	assert.Zero(t, rec.Replayed)
	require.NoError(t, e2.heap.Verify())
}

func TestPublish_DrainsOncePerDurabilityPoint(t *testing.T) {
	e := newEnv(t)
	a := e.newAccount(t, "Julius Caesar", 100)
	b := e.newAccount(t, "Mark Anthony", 50)

	batch := e.log.NewBatch()
	for i := range 20 {
		target := a
		if i%2 == 1 {
			target = b
		}
		require.NoError(t, batch.SetValue(target, balanceOff, uint64(i)))
	}
	before := e.tr.Stats().Drains
	require.NoError(t, batch.Publish())
	assert.Equal(t, 4, e.tr.Stats().Drains-before, "records, marker, apply, clear")
	assert.Equal(t, uint64(18), e.balance(t, a))
	assert.Equal(t, uint64(19), e.balance(t, b))
}

func TestReserveFree(t *testing.T) {
	e := newEnv(t)
	a := e.newAccount(t, "Julius Caesar", 100)

	batch := e.log.NewBatch()
	require.NoError(t, batch.ReserveFree(a))
	require.ErrorIs(t, batch.ReserveFree(a), ErrDuplicateFree)

	// Still visible until publish.
	assert.Equal(t, []alloc.ObjectRef{a}, e.accounts(t))
	assert.Equal(t, uint64(100), e.balance(t, a))

	require.NoError(t, batch.Publish())
	assert.Empty(t, e.accounts(t))
	_, err := e.heap.Resolve(a)
	require.ErrorIs(t, err, alloc.ErrInvalidRef)

	err = e.log.NewBatch().ReserveFree(a)
	require.ErrorIs(t, err, alloc.ErrInvalidRef)
}

func TestAbandon(t *testing.T) {
	e := newEnv(t)
	before := e.heap.Stats()

	batch := e.log.NewBatch()
	acc := e.stageAccount(t, batch, "Brutus", 1)
	drains := e.tr.Stats().Drains
	require.NoError(t, batch.Abandon())
	assert.Equal(t, drains, e.tr.Stats().Drains, "abandon never drains")
	assert.Equal(t, BatchAbandoned, batch.State())

	_, err := e.heap.Resolve(acc)
	require.ErrorIs(t, err, alloc.ErrInvalidRef)
	assert.Equal(t, before.FreeBytes, e.heap.Stats().FreeBytes)

	require.ErrorIs(t, batch.Publish(), ErrBatchDone)
	require.ErrorIs(t, batch.Abandon(), ErrBatchDone)
	_, err = batch.ReserveAlloc(8, typeName)
	require.ErrorIs(t, err, ErrBatchDone)

	e = e.restart(t)
	assert.Equal(t, before.FreeBytes, e.heap.Stats().FreeBytes)
}

func TestBatch_SingleUse(t *testing.T) {
	e := newEnv(t)
	batch := e.log.NewBatch()
	require.NoError(t, batch.Publish(), "empty batches publish trivially")
	require.ErrorIs(t, batch.Publish(), ErrBatchDone)
	require.ErrorIs(t, batch.SetRoot(alloc.Null, 0), ErrBatchDone)
}

func TestBatch_Full(t *testing.T) {
	e := newEnv(t)
	a := e.newAccount(t, "Julius Caesar", 100)

	batch := e.log.NewBatch()
	for range MaxActions {
		require.NoError(t, batch.SetValue(a, balanceOff, 1))
	}
	require.ErrorIs(t, batch.SetValue(a, balanceOff, 1), ErrBatchFull)
	_, err := batch.ReserveAlloc(8, typeName)
	require.ErrorIs(t, err, ErrBatchFull)
	require.NoError(t, batch.Publish())
}

func TestSetValue_Validation(t *testing.T) {
	e := newEnv(t)
	a := e.newAccount(t, "Julius Caesar", 100)
	usable, err := e.heap.UsableSize(a)
	require.NoError(t, err)

	batch := e.log.NewBatch()
	require.ErrorIs(t, batch.SetValue(a, 3, 1), alloc.ErrInvalidRef, "misaligned")
	require.ErrorIs(t, batch.SetValue(a, usable, 1), alloc.ErrInvalidRef, "past the payload")
	require.ErrorIs(t, batch.SetValue(a, 1<<64-8, 1), alloc.ErrInvalidRef, "wrapping field offset")
	require.ErrorIs(t, batch.SetValue(alloc.Null, 0, 1), alloc.ErrInvalidRef)

	// Another batch's reservation is off limits.
	other := e.log.NewBatch()
	r, err := other.ReserveAlloc(16, typeName)
	require.NoError(t, err)
	require.ErrorIs(t, batch.SetValue(r, 0, 1), alloc.ErrInvalidRef)

	// Our own reservation is fine.
	mine, err := batch.ReserveAlloc(16, typeName)
	require.NoError(t, err)
	require.NoError(t, batch.SetValue(mine, 8, 0xAA))
	require.NoError(t, batch.Publish())

	buf, err := e.heap.Resolve(mine)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xAA), binary.LittleEndian.Uint64(buf[8:]))
	require.NoError(t, other.Abandon())
}

func TestSetRoot(t *testing.T) {
	e := newEnv(t)

	batch := e.log.NewBatch()
	root, err := batch.ReserveAlloc(64, alloc.TypeRoot)
	require.NoError(t, err)
	require.NoError(t, batch.SetRoot(root, 64))
	assert.Equal(t, 3, batch.Len())
	require.NoError(t, batch.Publish())

	assert.Equal(t, root.Off, e.p.RootOffset())
	assert.Equal(t, uint64(64), e.p.RootSize())
}

func TestNewLog_RequiresRecovery(t *testing.T) {
	e := newEnv(t)
	e.p.StoreWord(format.MarkerOffset, 1)
	_, err := NewLog(e.p, e.heap, e.tr)
	require.ErrorIs(t, err, ErrCorruptLog)
}

func TestRecover_CorruptLog(t *testing.T) {
	tests := []struct {
		name   string
		marker uint64
		rec    Record
	}{
		{"marker beyond capacity", format.LogCapacity + 1, Record{KindSet, format.HeapStart, 0}},
		{"unknown kind", 1, Record{Kind(9), format.HeapStart, 0}},
		{"misaligned", 1, Record{KindSet, format.HeapStart + 3, 0}},
		{"immutable header", 1, Record{KindSet, format.PoolIDOffset, 0}},
		{"past the end", 1, Record{KindSet, pool.MinPoolSize, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			putRecord(e.p.Bytes(), 0, tt.rec)
			e.p.StoreWord(format.MarkerOffset, tt.marker)
			_, err := Recover(e.p, e.tr)
			require.ErrorIs(t, err, ErrCorruptLog)
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "alloc", KindAlloc.String())
	assert.Equal(t, "free", KindFree.String())
	assert.Equal(t, "set", KindSet.String())
	assert.Equal(t, "kind(7)", Kind(7).String())
	assert.Equal(t, "failed", BatchFailed.String())
}

func TestPublish_PowerCut(t *testing.T) {
	stages := []struct {
		name      string
		stage     Stage
		idx       int
		committed bool
	}{
		{"logged", StageLogged, 0, false},
		{"committed", StageCommitted, 0, true},
		{"applying", StageApplying, 2, true},
		{"applied", StageApplied, 0, true},
	}
	for _, tt := range stages {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			a := e.newAccount(t, "Julius Caesar", 100)
			b := e.newAccount(t, "Mark Anthony", 50)
			d := e.newAccount(t, "Brutus", 1)
			before := e.heap.Stats()

			// Every record kind in one batch: sets, allocations and a free.
			batch := e.transfer(t, a, b, 42)
			c := e.stageAccount(t, batch, "Cleopatra", 7)
			require.NoError(t, batch.ReserveFree(d))

			crashWhen(t, tt.stage, tt.idx)
			require.ErrorIs(t, batch.Publish(), errCrashed)

			e.requireCutsRecover(t, func(t *testing.T, e *env) {
				assert.Zero(t, e.p.Marker())
				if !tt.committed {
					assert.Equal(t, []alloc.ObjectRef{a, b, d}, e.accounts(t))
					assert.Equal(t, uint64(100), e.balance(t, a))
					assert.Equal(t, uint64(50), e.balance(t, b))
					assert.Equal(t, before.FreeBytes, e.heap.Stats().FreeBytes)
					return
				}
				assert.Equal(t, []alloc.ObjectRef{a, b, c}, e.accounts(t))
				assert.Equal(t, uint64(58), e.balance(t, a))
				assert.Equal(t, uint64(92), e.balance(t, b))
				assert.Equal(t, uint64(7), e.balance(t, c))
				assert.Equal(t, "Cleopatra", e.name(t, c))
				_, err := e.heap.Resolve(d)
				require.ErrorIs(t, err, alloc.ErrInvalidRef)
			})
		})
	}
}

func TestReserveFree_PinsObject(t *testing.T) {
	e := newEnv(t)
	x := e.newAccount(t, "Julius Caesar", 100)

	batch := e.log.NewBatch()
	require.NoError(t, batch.ReserveFree(x))
	require.ErrorIs(t, e.heap.Free(x), alloc.ErrInvalidRef, "no direct free while a batch frees it")

	other := e.log.NewBatch()
	require.ErrorIs(t, other.ReserveFree(x), alloc.ErrInvalidRef)
	require.ErrorIs(t, other.SetValue(x, balanceOff, 1), alloc.ErrInvalidRef)
	require.NoError(t, other.Abandon())

	require.NoError(t, batch.Publish())
	y, err := e.heap.Alloc(accountSize, typeAccount, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []alloc.ObjectRef{y}, e.accounts(t))

	e = e.restart(t)
	assert.Equal(t, []alloc.ObjectRef{y}, e.accounts(t))
	require.NoError(t, e.heap.Verify())
}

func TestSetValue_PinsTarget(t *testing.T) {
	e := newEnv(t)
	x := e.newAccount(t, "Julius Caesar", 100)

	abandoned := e.log.NewBatch()
	require.NoError(t, abandoned.SetValue(x, balanceOff, 1))
	require.ErrorIs(t, e.heap.Free(x), alloc.ErrInvalidRef)
	require.NoError(t, abandoned.Abandon())

	published := e.log.NewBatch()
	require.NoError(t, published.SetValue(x, balanceOff, 2))
	require.ErrorIs(t, e.heap.Free(x), alloc.ErrInvalidRef)
	require.NoError(t, published.Publish())
	assert.Equal(t, uint64(2), e.balance(t, x))

	require.NoError(t, e.heap.Free(x), "published and abandoned batches drop their pins")
}

func TestReserveFree_Root(t *testing.T) {
	e := newEnv(t)

	batch := e.log.NewBatch()
	root, err := batch.ReserveAlloc(64, alloc.TypeRoot)
	require.NoError(t, err)
	require.NoError(t, batch.SetRoot(root, 64))
	require.NoError(t, batch.Publish())

	require.ErrorIs(t, e.log.NewBatch().ReserveFree(root), alloc.ErrInvalidRef)
	require.ErrorIs(t, e.heap.Free(root), alloc.ErrInvalidRef)

	e = e.restart(t)
	assert.Equal(t, root.Off, e.p.RootOffset())
	_, err = e.heap.Resolve(root)
	require.NoError(t, err)
}

package persist

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/pmemkit/pool"
)

// fakeTarget records write-backs and can be told to fail.
type fakeTarget struct {
	mu       sync.Mutex
	flushed  []Range
	syncs    int
	flushErr error
	syncErr  error
}

func (f *fakeTarget) FlushRange(off, length int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flushErr != nil {
		return f.flushErr
	}
	f.flushed = append(f.flushed, Range{Off: off, Len: length})
	return nil
}

func (f *fakeTarget) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncErr != nil {
		return f.syncErr
	}
	f.syncs++
	return nil
}

func Test_Tracker_PageAlignment(t *testing.T) {
	tr := NewTracker(&fakeTarget{})
	tr.Flush(100, 200)

	got := tr.coalesce()
	require.Len(t, got, 1)
	assert.Equal(t, Range{Off: 0, Len: 4096}, got[0])
}

func Test_Tracker_Coalesce(t *testing.T) {
	tests := []struct {
		name string
		in   []Range
		want []Range
	}{
		{
			name: "adjacent",
			in:   []Range{{4096, 4096}, {8192, 4096}},
			want: []Range{{4096, 8192}},
		},
		{
			name: "overlapping",
			in:   []Range{{4096, 100}, {4150, 8000}},
			want: []Range{{4096, 8192}},
		},
		{
			name: "disjoint unsorted",
			in:   []Range{{40960, 8}, {0, 8}},
			want: []Range{{0, 4096}, {40960, 4096}},
		},
		{
			name: "contained",
			in:   []Range{{0, 16384}, {4096, 8}},
			want: []Range{{0, 16384}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(&fakeTarget{})
			for _, r := range tt.in {
				tr.Flush(r.Off, r.Len)
			}
			assert.Equal(t, tt.want, tr.coalesce())
		})
	}
}

func Test_Tracker_FlushIsNoIO(t *testing.T) {
	ft := &fakeTarget{}
	tr := NewTracker(ft)
	tr.Flush(0, 8)
	tr.Flush(0, 0) // ignored
	assert.Empty(t, ft.flushed)
	assert.Zero(t, ft.syncs)
	assert.Equal(t, 1, tr.Pending())
}

func Test_Tracker_Drain(t *testing.T) {
	ft := &fakeTarget{}
	tr := NewTracker(ft)
	tr.Flush(0x1010, 16)
	tr.Flush(0x1020, 8)
	tr.Flush(0x5000, 8)

	require.NoError(t, tr.Drain())
	assert.Equal(t, []Range{{0x1000, 0x1000}, {0x5000, 0x1000}}, ft.flushed)
	assert.Equal(t, 1, ft.syncs)
	assert.Zero(t, tr.Pending())

	st := tr.Stats()
	assert.Equal(t, 3, st.Flushes)
	assert.Equal(t, 1, st.Drains)
	assert.Equal(t, 2, st.Ranges)
}

func Test_Tracker_DrainEmptyStillSyncs(t *testing.T) {
	ft := &fakeTarget{}
	tr := NewTracker(ft)
	require.NoError(t, tr.Drain())
	assert.Equal(t, 1, ft.syncs)
}

func Test_Tracker_Persist(t *testing.T) {
	ft := &fakeTarget{}
	tr := NewTracker(ft)
	require.NoError(t, tr.Persist(0x200, 8))
	assert.Equal(t, []Range{{0, 0x1000}}, ft.flushed)
	assert.Equal(t, 1, tr.Stats().Drains)
}

func Test_Tracker_PoisonOnFailure(t *testing.T) {
	boom := errors.New("device gone")

	t.Run("flush", func(t *testing.T) {
		ft := &fakeTarget{flushErr: boom}
		tr := NewTracker(ft)
		tr.Flush(0, 8)
		require.ErrorIs(t, tr.Drain(), boom)

		ft.flushErr = nil
		err := tr.Drain()
		require.ErrorIs(t, err, ErrPoisoned)
		require.ErrorIs(t, err, boom)
		require.ErrorIs(t, tr.Poisoned(), boom)
	})

	t.Run("sync", func(t *testing.T) {
		ft := &fakeTarget{syncErr: boom}
		tr := NewTracker(ft)
		require.ErrorIs(t, tr.Persist(0, 8), boom)
		require.ErrorIs(t, tr.Drain(), ErrPoisoned)
	})
}

func Test_Tracker_Concurrent(t *testing.T) {
	ft := &fakeTarget{}
	tr := NewTracker(ft)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				tr.Flush(int64(i*4096+j*8), 8)
				if j%10 == 0 {
					assert.NoError(t, tr.Drain())
				}
			}
		}()
	}
	wg.Wait()
	require.NoError(t, tr.Drain())
	assert.Equal(t, 400, tr.Stats().Flushes)
}

func Test_Tracker_RealPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.pool")
	p, err := pool.Create(path, "persist", pool.MinPoolSize, 0o600, nil)
	require.NoError(t, err)

	tr := NewTracker(p)
	p.StoreWord(0x2000, 0xCAFEBABE)
	require.NoError(t, tr.Persist(0x2000, 8))
	require.NoError(t, p.Close())

	p, err = pool.Open(path, "persist", nil)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, uint64(0xCAFEBABE), p.LoadWord(0x2000))

	// Drains against a closed pool poison the tracker.
	require.NoError(t, p.Close())
	tr = NewTracker(p)
	require.ErrorIs(t, tr.Persist(0x2000, 8), pool.ErrClosed)
}

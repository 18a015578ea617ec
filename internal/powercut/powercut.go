// Package powercut simulates power failures against a pool.
//
// Its Mapper keeps, next to the live mapping, the image the device is known
// to hold: every range the pool has flushed and synced, nothing else.
// Stores that were never drained may or may not have reached the device by
// the time power goes, so Cuts derives a set of crash images from the runs
// of words where the mapping and the durable image disagree.
//
// Pools mapped through it must use pool.FlushAuto or pool.FlushFull;
// FlushDataOnly never syncs, so nothing would count as durable.
package powercut

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/joshuapare/pmemkit/pool"
)

// WordSize is the granularity at which stores are compared.
const WordSize = 8

// Mapper wraps the platform mapper and tracks the durable image of the
// file it mapped last.
type Mapper struct {
	inner pool.Mapper

	mu      sync.Mutex
	region  *pool.Region
	durable []byte
	staged  []span
}

type span struct {
	off  int64
	data []byte
}

// Run is a range of consecutive words that differ between the mapping and
// the durable image.
type Run struct {
	Off int64
	Len int64
}

// Cut is one device image a power failure could leave behind: the durable
// image with the kept runs of the mapping copied over it.
type Cut struct {
	Name string

	snap *snapshot
	keep []bool
}

type snapshot struct {
	durable []byte
	live    []byte
	runs    []Run
}

// New returns a Mapper on top of pool.DefaultMapper().
func New() *Mapper {
	return &Mapper{inner: pool.DefaultMapper()}
}

func (m *Mapper) Map(path string, size int64, create bool, perm os.FileMode) (*pool.Region, error) {
	r, err := m.inner.Map(path, size, create, perm)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.region = r
	m.durable = bytes.Clone(r.Data)
	m.staged = m.staged[:0]
	return r, nil
}

// FlushRegion snapshots the range. The snapshot becomes durable at the
// next Sync.
func (m *Mapper) FlushRegion(r *pool.Region, off, length int64) error {
	if err := m.inner.FlushRegion(r, off, length); err != nil {
		return err
	}
	start, end := max(off, 0), min(off+length, int64(len(r.Data)))
	if start >= end {
		return nil
	}
	m.mu.Lock()
	m.staged = append(m.staged, span{off: start, data: bytes.Clone(r.Data[start:end])})
	m.mu.Unlock()
	return nil
}

func (m *Mapper) Sync(r *pool.Region, full bool) error {
	if err := m.inner.Sync(r, full); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == m.region {
		for _, s := range m.staged {
			copy(m.durable[s.off:], s.data)
		}
	}
	m.staged = m.staged[:0]
	return nil
}

func (m *Mapper) Unmap(r *pool.Region) error {
	m.mu.Lock()
	if r == m.region {
		m.region = nil
	}
	m.mu.Unlock()
	return m.inner.Unmap(r)
}

// Dirty returns the runs of words whose mapped value is not durable.
func (m *Mapper) Dirty() ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.region == nil {
		return nil, errors.New("powercut: nothing mapped")
	}
	return m.dirtyLocked(), nil
}

func (m *Mapper) dirtyLocked() []Run {
	live := m.region.Data
	var runs []Run
	for off := 0; off+WordSize <= len(live); off += WordSize {
		if bytes.Equal(live[off:off+WordSize], m.durable[off:off+WordSize]) {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].Off+runs[n-1].Len == int64(off) {
			runs[n-1].Len += WordSize
			continue
		}
		runs = append(runs, Run{Off: int64(off), Len: WordSize})
	}
	return runs
}

// Cuts returns the crash images for this moment: every undrained store
// lost, every one kept, and for each dirty run the images where only that
// run is lost and where only that run is kept.
func (m *Mapper) Cuts() ([]Cut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.region == nil {
		return nil, errors.New("powercut: nothing mapped")
	}
	snap := &snapshot{
		durable: bytes.Clone(m.durable),
		live:    bytes.Clone(m.region.Data),
		runs:    m.dirtyLocked(),
	}
	n := len(snap.runs)
	mask := func(keep func(i int) bool) []bool {
		out := make([]bool, n)
		for i := range out {
			out[i] = keep(i)
		}
		return out
	}

	cuts := []Cut{{Name: "all lost", snap: snap, keep: mask(func(int) bool { return false })}}
	if n == 0 {
		return cuts, nil
	}
	cuts = append(cuts, Cut{Name: "all kept", snap: snap, keep: mask(func(int) bool { return true })})
	if n == 1 {
		return cuts, nil
	}
	for i, r := range snap.runs {
		cuts = append(cuts,
			Cut{Name: fmt.Sprintf("lost [%#x,+%d)", r.Off, r.Len), snap: snap, keep: mask(func(j int) bool { return j != i })},
			Cut{Name: fmt.Sprintf("kept [%#x,+%d)", r.Off, r.Len), snap: snap, keep: mask(func(j int) bool { return j == i })},
		)
	}
	return cuts, nil
}

// Image builds the device image of the cut.
func (c Cut) Image() []byte {
	img := bytes.Clone(c.snap.durable)
	for i, r := range c.snap.runs {
		if c.keep[i] {
			copy(img[r.Off:r.Off+r.Len], c.snap.live[r.Off:r.Off+r.Len])
		}
	}
	return img
}

// Write stores the cut's image at path, replacing the file.
func (c Cut) Write(path string) error {
	return os.WriteFile(path, c.Image(), 0o600)
}

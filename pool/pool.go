package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/internal/logger"
)

const (
	// MinPoolSize is the smallest capacity Create accepts.
	MinPoolSize = 8 << 20

	// MaxPoolSize is the largest capacity Create accepts.
	MaxPoolSize = 1 << 40
)

// Pool is an open, mapped pool file. The mapping never moves while the
// pool is open, so offsets into Bytes stay valid until Close.
type Pool struct {
	path   string
	region *Region
	mapper Mapper
	mode   FlushMode
	header *Header
	log    *slog.Logger
	closed atomic.Bool
}

// Create creates a new pool file of the given capacity and writes a fresh
// header stamped with layout. size is rounded down to a page multiple.
//
// An existing empty file is reused; any other existing file is refused
// with ErrAlreadyExists.
func Create(path, layout string, size int64, perm os.FileMode, opts *Options) (*Pool, error) {
	o := opts.withDefaults()
	log := logger.Or(o.Logger)

	size = format.AlignPageDown(size)
	if size < MinPoolSize || size > MaxPoolSize {
		return nil, fmt.Errorf("%w: %d (allowed %d..%d)", ErrInvalidSize, size, MinPoolSize, MaxPoolSize)
	}
	tag, err := format.NormalizeLayout(layout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}

	if st, err := os.Stat(path); err == nil {
		if st.Size() > 0 {
			if h, _, herr := ReadHeaderFile(path); herr == nil {
				return nil, fmt.Errorf("%w: %s (pool with layout %q)", ErrAlreadyExists, path, h.Layout())
			}
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	id, err := newPoolID()
	if err != nil {
		return nil, fmt.Errorf("%w: pool id: %w", ErrIO, err)
	}

	region, err := o.Mapper.Map(path, size, true, perm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	writeHeader(region.Data, size, id, tag, time.Now())
	p := &Pool{path: path, region: region, mapper: o.Mapper, mode: o.FlushMode, log: log}
	if err := p.FlushRange(0, format.HeaderSize); err == nil {
		err = p.Sync()
	}
	if err != nil {
		_ = o.Mapper.Unmap(region)
		return nil, err
	}
	p.header = &Header{raw: region.Data[:format.HeaderSize]}
	if o.PreFault {
		if err := PreFaultPages(region.Data); err != nil {
			log.Warn("pre-fault failed", "path", path, "error", err)
		}
	}

	log.Info("pool created", "path", path, "layout", tag, "size", size,
		"pool_id", fmt.Sprintf("%016x", id), "pmem", region.IsPMEM)
	return p, nil
}

// Open maps an existing pool file and checks its header against layout.
// Open does not look at the heap or the action log; callers run recovery
// before touching either.
func Open(path, layout string, opts *Options) (*Pool, error) {
	o := opts.withDefaults()
	log := logger.Or(o.Logger)

	tag, err := format.NormalizeLayout(layout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	region, err := o.Mapper.Map(path, 0, false, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	h, err := ParseHeader(region.Data)
	if err == nil {
		err = h.Validate(int64(len(region.Data)))
	}
	if err == nil && h.Layout() != tag {
		err = fmt.Errorf("%w: pool has %q, want %q", ErrLayoutMismatch, h.Layout(), tag)
	}
	if err != nil {
		_ = o.Mapper.Unmap(region)
		return nil, err
	}
	if o.PreFault {
		if err := PreFaultPages(region.Data); err != nil {
			_ = o.Mapper.Unmap(region)
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	log.Debug("pool opened", "path", path, "layout", tag, "size", len(region.Data),
		"clean", h.IsClean(), "seq", h.Sequence(), "pmem", region.IsPMEM)
	return &Pool{path: path, region: region, mapper: o.Mapper, mode: o.FlushMode, header: h, log: log}, nil
}

// Close flushes the header page, unmaps the file and closes it.
// Closing an already closed pool is a no-op.
func (p *Pool) Close() error {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if ferr := p.mapper.FlushRegion(p.region, 0, format.HeaderSize); ferr != nil {
		err = fmt.Errorf("%w: %w", ErrIO, ferr)
	}
	if uerr := p.mapper.Unmap(p.region); uerr != nil {
		err = errors.Join(err, fmt.Errorf("%w: %w", ErrIO, uerr))
	}
	p.header = nil
	return err
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool { return p.closed.Load() }

// Path returns the backing file path.
func (p *Pool) Path() string { return p.path }

// Bytes returns the mapped pool. The slice is invalid after Close.
func (p *Pool) Bytes() []byte { return p.region.Data }

// Size returns the pool capacity in bytes.
func (p *Pool) Size() int64 { return int64(len(p.region.Data)) }

// Header returns the header view.
func (p *Pool) Header() *Header { return p.header }

// ID returns the pool identifier.
func (p *Pool) ID() uint64 { return p.header.PoolID() }

// Layout returns the layout tag the pool was created with.
func (p *Pool) Layout() string { return p.header.Layout() }

// IsPMEM reports whether the mapping is persistent memory that needs no
// page cache writeback (MAP_SYNC accepted by the kernel).
func (p *Pool) IsPMEM() bool { return p.region.IsPMEM }

// FlushMode returns the barrier mode used by Sync.
func (p *Pool) FlushMode() FlushMode { return p.mode }

// Logger returns the logger the pool was opened with.
func (p *Pool) Logger() *slog.Logger { return p.log }

// FlushRange writes back [off, off+length) of the mapping.
func (p *Pool) FlushRange(off, length int64) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.mapper.FlushRegion(p.region, off, length); err != nil {
		return fmt.Errorf("%w: flush [%d,+%d): %w", ErrIO, off, length, err)
	}
	return nil
}

// Sync issues the barrier selected by the pool's FlushMode.
func (p *Pool) Sync() error {
	if p.closed.Load() {
		return ErrClosed
	}
	if p.mode == FlushDataOnly {
		return nil
	}
	if err := p.mapper.Sync(p.region, p.mode == FlushFull); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	return nil
}

// ---- Mutable header words ----
//
// These are plain stores into the mapping. Durability is the caller's job:
// flush the word and drain before relying on it.

// LoadWord reads the 8-byte word at off.
func (p *Pool) LoadWord(off uint64) uint64 { return format.ReadU64(p.region.Data, int(off)) }

// StoreWord writes the 8-byte word at off.
func (p *Pool) StoreWord(off, v uint64) { format.PutU64(p.region.Data, int(off), v) }

// RootOffset returns the root payload offset, 0 if no root exists.
func (p *Pool) RootOffset() uint64 { return p.header.RootOffset() }

// RootSize returns the size the root was allocated with.
func (p *Pool) RootSize() uint64 { return p.header.RootSize() }

// Marker returns the action log commit marker.
func (p *Pool) Marker() uint64 { return p.header.Marker() }

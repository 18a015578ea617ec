package action

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/pool"
	"github.com/joshuapare/pmemkit/pool/alloc"
	"github.com/joshuapare/pmemkit/pool/persist"
)

// MaxActions is the largest number of records one batch may hold.
const MaxActions = 64

// Log commits batches of actions against one pool. Publish calls are
// serialized; building batches is not, but a Batch itself must not be
// shared between goroutines.
type Log struct {
	mu   sync.Mutex
	p    *pool.Pool
	heap *alloc.Heap
	d    persist.Drainer
	log  *slog.Logger
	ids  atomic.Uint64
}

// NewLog returns the action log of p. The log must be clean: run Recover
// first.
func NewLog(p *pool.Pool, heap *alloc.Heap, d persist.Drainer) (*Log, error) {
	if m := p.Marker(); m != 0 {
		return nil, fmt.Errorf("%w: marker set (%d records), recovery has not run", ErrCorruptLog, m)
	}
	return &Log{p: p, heap: heap, d: d, log: p.Logger()}, nil
}

// NewBatch starts an empty batch.
func (l *Log) NewBatch() *Batch {
	return &Batch{log: l, id: l.ids.Add(1), actions: make([]Action, 0, 8)}
}

// Sequence returns the number of batches committed over the pool's life.
func (l *Log) Sequence() uint64 {
	return l.p.LoadWord(format.SequenceOffset)
}

// commit runs the publish protocol for recs. It returns whether the
// marker was stored, so callers know who owns the outcome of a failure.
func (l *Log) commit(recs []Action) (marked bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data := l.p.Bytes()
	n := len(recs)

	// (1) Records. Payload writes and reservation metadata were flushed
	// by the callers that made them.
	for i, a := range recs {
		putRecord(data, i, a.Record)
	}
	l.d.Flush(format.LogOffset, int64(n*format.LogRecordSize))

	// (2) One drain covers the records and everything flushed before them.
	if err := l.d.Drain(); err != nil {
		return false, err
	}
	if crashAt(StageLogged, 0) {
		return false, errCrashed
	}

	// (3, 4) The commit point.
	l.p.StoreWord(format.MarkerOffset, uint64(n))
	if err := l.d.Persist(format.MarkerOffset, 8); err != nil {
		return true, err
	}
	if crashAt(StageCommitted, 0) {
		return true, errCrashed
	}

	// (5) Apply.
	for i, a := range recs {
		if crashAt(StageApplying, i) {
			return true, errCrashed
		}
		l.p.StoreWord(a.Off, a.Val)
		l.d.Flush(int64(a.Off), 8)
	}

	// (6)
	if err := l.d.Drain(); err != nil {
		return true, err
	}
	if crashAt(StageApplied, 0) {
		return true, errCrashed
	}

	// (7)
	seq, err := clearMarker(l.p, l.d)
	if err != nil {
		return true, err
	}
	l.log.Debug("batch published", "path", l.p.Path(), "records", n, "seq", seq)
	return true, nil
}

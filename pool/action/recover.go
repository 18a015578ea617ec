package action

import (
	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/pool"
	"github.com/joshuapare/pmemkit/pool/persist"
)

// RecoveryResult reports what a recovery pass did.
type RecoveryResult struct {
	Replayed int    // records applied, 0 when the log was clean
	Sequence uint64 // batch sequence after recovery
}

// Recover finishes a batch whose commit marker is durable but whose
// records may not all have been applied. Every record is applied again,
// which is harmless because each one is an absolute 8-byte store, then
// the marker is cleared. Running Recover again at any point, including
// after a crash inside Recover, yields the same state.
//
// Recover must run before the heap is audited.
func Recover(p *pool.Pool, d persist.Drainer) (RecoveryResult, error) {
	recs, err := Records(p)
	if err != nil {
		return RecoveryResult{}, err
	}
	if len(recs) == 0 {
		return RecoveryResult{Sequence: p.LoadWord(format.SequenceOffset)}, nil
	}

	log := p.Logger()
	log.Info("replaying committed batch", "path", p.Path(), "records", len(recs),
		"seq", p.LoadWord(format.SequenceOffset))

	for i, r := range recs {
		if crashAt(StageReplaying, i) {
			return RecoveryResult{}, errCrashed
		}
		p.StoreWord(r.Off, r.Val)
		d.Flush(int64(r.Off), 8)
	}
	if err := d.Drain(); err != nil {
		return RecoveryResult{}, err
	}

	seq, err := clearMarker(p, d)
	if err != nil {
		return RecoveryResult{}, err
	}
	log.Debug("action log clean", "path", p.Path(), "seq", seq)
	return RecoveryResult{Replayed: len(recs), Sequence: seq}, nil
}

// clearMarker ends a commit: the marker goes back to zero and the
// sequence advances, both made durable so the log area can be reused.
func clearMarker(p *pool.Pool, d persist.Drainer) (uint64, error) {
	seq := p.LoadWord(format.SequenceOffset) + 1
	p.StoreWord(format.MarkerOffset, 0)
	p.StoreWord(format.SequenceOffset, seq)
	return seq, d.Persist(format.MarkerOffset, 16)
}

package action

import (
	"fmt"

	"github.com/joshuapare/pmemkit/internal/buf"
	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/pool"
)

// Kind identifies what a log record does. Every record is applied the
// same way, as one 8-byte store of val at off; the kind is kept for
// validation and diagnostics.
type Kind uint64

const (
	// KindAlloc flips a reserved slot's meta word to occupied.
	KindAlloc Kind = 1
	// KindFree flips an occupied slot's meta word to free.
	KindFree Kind = 2
	// KindSet writes a caller value into a payload or a root word.
	KindSet Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindAlloc:
		return "alloc"
	case KindFree:
		return "free"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", uint64(k))
	}
}

// Record is one entry of the persisted action log.
type Record struct {
	Kind Kind
	Off  uint64 // absolute pool offset of the 8-byte target word
	Val  uint64
}

func recordOffset(i int) int { return format.LogOffset + i*format.LogRecordSize }

func putRecord(b []byte, i int, r Record) {
	base := recordOffset(i)
	format.PutU64(b, base+format.RecordKindOffset, uint64(r.Kind))
	format.PutU64(b, base+format.RecordOffOffset, r.Off)
	format.PutU64(b, base+format.RecordValOffset, r.Val)
}

func readRecord(b []byte, i int) Record {
	base := recordOffset(i)
	return Record{
		Kind: Kind(format.ReadU64(b, base+format.RecordKindOffset)),
		Off:  format.ReadU64(b, base+format.RecordOffOffset),
		Val:  format.ReadU64(b, base+format.RecordValOffset),
	}
}

// validate checks that replaying r cannot write outside the mutable parts
// of the pool.
func (r Record) validate(poolSize uint64) error {
	switch r.Kind {
	case KindAlloc, KindFree, KindSet:
	default:
		return fmt.Errorf("%w: unknown record kind %d", ErrCorruptLog, uint64(r.Kind))
	}
	if r.Off%8 != 0 {
		return fmt.Errorf("%w: %s record target %#x not 8-byte aligned", ErrCorruptLog, r.Kind, r.Off)
	}
	inRoot := r.Off == format.RootOffsetOffset || r.Off == format.RootSizeOffset
	inHeap := r.Off >= format.HeapStart && buf.InRange(r.Off, 8, poolSize)
	if !inRoot && !inHeap {
		return fmt.Errorf("%w: %s record target %#x outside the heap", ErrCorruptLog, r.Kind, r.Off)
	}
	return nil
}

// Records returns the records of the committed batch p's log holds, or
// nil when the log is clean.
func Records(p *pool.Pool) ([]Record, error) {
	n := p.Marker()
	if n == 0 {
		return nil, nil
	}
	if n > format.LogCapacity {
		return nil, fmt.Errorf("%w: marker claims %d records, capacity %d", ErrCorruptLog, n, format.LogCapacity)
	}
	out := make([]Record, n)
	for i := range out {
		out[i] = readRecord(p.Bytes(), i)
		if err := out[i].validate(uint64(p.Size())); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return out, nil
}

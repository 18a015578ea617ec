package pool

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/joshuapare/pmemkit/internal/format"
)

// Header is a zero-copy view of the pool header page.
// All accessors read directly from the mapping.
type Header struct {
	raw []byte // len == format.HeaderSize
}

// ParseHeader checks the magic and returns a view over b.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < format.HeaderSize {
		return nil, fmt.Errorf("%w: file too small for header (%d)", ErrCorruptHeader, len(b))
	}
	if !bytes.Equal(b[format.MagicOffset:format.MagicOffset+format.MagicSize], format.PoolMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptHeader)
	}
	return &Header{raw: b[:format.HeaderSize]}, nil
}

// ReadHeaderFile reads and checks the header of a pool file without mapping it.
func ReadHeaderFile(path string) (*Header, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	buf := make([]byte, format.HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, st.Size(), fmt.Errorf("%w: short header: %w", ErrCorruptHeader, err)
	}
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, st.Size(), err
	}
	return h, st.Size(), nil
}

// ---- Primitive field readers (no alloc) ----

// Raw returns the raw bytes of the header page.
func (h *Header) Raw() []byte { return h.raw }

// Major returns the format major version.
func (h *Header) Major() uint32 { return format.ReadU32(h.raw, format.MajorVersionOffset) }

// Minor returns the format minor version.
func (h *Header) Minor() uint32 { return format.ReadU32(h.raw, format.MinorVersionOffset) }

// PoolSize returns the capacity recorded at creation.
func (h *Header) PoolSize() int64 { return int64(format.ReadU64(h.raw, format.PoolSizeOffset)) }

// HeapStart returns the absolute offset of the first slot.
func (h *Header) HeapStart() uint64 { return format.ReadU64(h.raw, format.HeapStartOffset) }

// PoolID returns the identifier stamped into every ObjectRef of this pool.
func (h *Header) PoolID() uint64 { return format.ReadU64(h.raw, format.PoolIDOffset) }

// Created returns the creation time.
func (h *Header) Created() time.Time {
	return time.Unix(0, int64(format.ReadU64(h.raw, format.CreatedOffset)))
}

// Layout returns the layout tag.
func (h *Header) Layout() string { return format.ReadLayout(h.raw) }

// Checksum returns the stored header checksum.
func (h *Header) Checksum() uint64 { return format.ReadU64(h.raw, format.ChecksumOffset) }

// ChecksumOK reports whether the stored checksum matches the immutable fields.
func (h *Header) ChecksumOK() bool { return h.Checksum() == headerChecksum(h.raw) }

// RootOffset returns the payload offset of the root object, 0 when absent.
func (h *Header) RootOffset() uint64 { return format.ReadU64(h.raw, format.RootOffsetOffset) }

// RootSize returns the size the root was created with.
func (h *Header) RootSize() uint64 { return format.ReadU64(h.raw, format.RootSizeOffset) }

// Marker returns the commit marker: the record count of a committed batch
// that has not finished applying, 0 when the log is clean.
func (h *Header) Marker() uint64 { return format.ReadU64(h.raw, format.MarkerOffset) }

// Sequence returns the number of batches published over the pool's lifetime.
func (h *Header) Sequence() uint64 { return format.ReadU64(h.raw, format.SequenceOffset) }

// IsClean reports whether no committed batch is waiting to be applied.
func (h *Header) IsClean() bool { return h.Marker() == 0 }

// Validate checks the header against the size of the mapped file.
func (h *Header) Validate(fileSize int64) error {
	if h.Major() != format.VersionMajor {
		return fmt.Errorf("%w: unsupported version %d.%d", ErrCorruptHeader, h.Major(), h.Minor())
	}
	if !h.ChecksumOK() {
		return fmt.Errorf("%w: checksum mismatch", ErrCorruptHeader)
	}
	if h.PoolSize() != fileSize {
		return fmt.Errorf("%w: header size %d, file size %d", ErrCorruptHeader, h.PoolSize(), fileSize)
	}
	if h.HeapStart() != format.HeapStart {
		return fmt.Errorf("%w: heap start %#x", ErrCorruptHeader, h.HeapStart())
	}
	if h.PoolID() == 0 {
		return fmt.Errorf("%w: zero pool id", ErrCorruptHeader)
	}
	return nil
}

// writeHeader initializes a fresh header page. The mutable area (root,
// marker, log) is left zeroed.
func writeHeader(b []byte, size int64, id uint64, layout string, created time.Time) {
	clear(b[:format.HeaderSize])
	copy(b[format.MagicOffset:], format.PoolMagic)
	format.PutU32(b, format.MajorVersionOffset, format.VersionMajor)
	format.PutU32(b, format.MinorVersionOffset, format.VersionMinor)
	format.PutU64(b, format.PoolSizeOffset, uint64(size))
	format.PutU64(b, format.HeapStartOffset, format.HeapStart)
	format.PutU64(b, format.PoolIDOffset, id)
	format.PutU64(b, format.CreatedOffset, uint64(created.UnixNano()))
	format.PutLayout(b, layout)
	format.PutU64(b, format.ChecksumOffset, headerChecksum(b))
}

// headerChecksum is the first eight bytes of SHA3-256 over the immutable fields.
func headerChecksum(b []byte) uint64 {
	sum := sha3.Sum256(b[:format.ChecksumRegionLen])
	return binary.LittleEndian.Uint64(sum[:8])
}

// newPoolID returns a random non-zero identifier.
func newPoolID() (uint64, error) {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if id := binary.LittleEndian.Uint64(b[:]); id != 0 {
			return id, nil
		}
	}
}

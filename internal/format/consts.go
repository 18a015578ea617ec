// Package format holds the on-disk layout of a pool file: the header page,
// the action log area inside it, and the in-band slot header that precedes
// every heap allocation. Higher-level packages only see offsets and the
// helpers defined here.
package format

// PoolMagic is the eight-byte signature at the start of every pool file.
//
//	0x00  'P' 'M' 'E' 'M' 'P' 'O' 'O' 'L'
var PoolMagic = []byte{'P', 'M', 'E', 'M', 'P', 'O', 'O', 'L'}

const (
	// HeaderSize is the size of the pool header. The heap begins right after it.
	HeaderSize = 0x1000

	// HeapStart is the absolute offset of the first slot header.
	HeapStart = HeaderSize

	// PageSize is the granularity flush ranges are rounded to.
	PageSize = 0x1000

	// VersionMajor and VersionMinor identify the layout described in this package.
	VersionMajor = 1
	VersionMinor = 0
)

// Header field offsets.
//
//	Offset  Size  Description
//	------  ----  -----------------------------------------------------
//	 0x000    8   magic "PMEMPOOL"
//	 0x008    4   major version
//	 0x00C    4   minor version
//	 0x010    8   total pool size
//	 0x018    8   heap start offset
//	 0x020    8   pool id
//	 0x028    8   creation time (unix nanoseconds)
//	 0x030   64   layout tag (NUL padded)
//	 0x070    8   checksum over 0x000..0x070
//	 0x100    8   root payload offset (0 = no root)
//	 0x108    8   root size
//	 0x200    8   commit marker (record count, 0 = clean)
//	 0x208    8   batch sequence
//	 0x210  24*N  action log records
const (
	MagicOffset        = 0x000
	MagicSize          = 8
	MajorVersionOffset = 0x008
	MinorVersionOffset = 0x00C
	PoolSizeOffset     = 0x010
	HeapStartOffset    = 0x018
	PoolIDOffset       = 0x020
	CreatedOffset      = 0x028
	LayoutOffset       = 0x030
	LayoutSize         = 64
	ChecksumOffset     = 0x070

	// ChecksumRegionLen covers every immutable field written at creation.
	ChecksumRegionLen = ChecksumOffset

	RootOffsetOffset = 0x100
	RootSizeOffset   = 0x108

	MarkerOffset   = 0x200
	SequenceOffset = 0x208
	LogOffset      = 0x210

	// LogRecordSize is kind, target offset and value, eight bytes each.
	LogRecordSize = 24

	// LogCapacity is the number of records the header page can hold.
	LogCapacity = 96

	// MaxLayoutLen leaves room for the terminating NUL.
	MaxLayoutLen = LayoutSize - 1
)

// Log record field offsets, relative to the start of a record.
const (
	RecordKindOffset = 0
	RecordOffOffset  = 8
	RecordValOffset  = 16
)

// Slot header layout. Every heap slot starts with:
//
//	+0  u64  slot size including this header (multiple of SlotAlignment)
//	+8  u64  meta word: low byte is the state, high 32 bits the type tag
//
// The meta word is written with a single 8-byte store so the state and the
// type tag can never disagree after a crash.
const (
	SlotHeaderSize = 16
	SlotSizeOffset = 0
	SlotMetaOffset = 8

	// SlotAlignment is the alignment of every slot offset and size.
	SlotAlignment     = 16
	SlotAlignmentMask = SlotAlignment - 1

	// MinSlotSize is the smallest slot worth keeping on a free list.
	MinSlotSize = 32
)

// SlotState is the low byte of a slot meta word.
type SlotState uint8

const (
	StateInvalid  SlotState = 0
	StateFree     SlotState = 1
	StateReserved SlotState = 2
	StateOccupied SlotState = 3
)

func (s SlotState) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateReserved:
		return "reserved"
	case StateOccupied:
		return "occupied"
	default:
		return "invalid"
	}
}

// Meta packs a state and a type tag into a slot meta word.
func Meta(state SlotState, tag uint32) uint64 {
	return uint64(state) | uint64(tag)<<32
}

// SplitMeta is the inverse of Meta.
func SplitMeta(meta uint64) (SlotState, uint32) {
	return SlotState(meta & 0xFF), uint32(meta >> 32)
}

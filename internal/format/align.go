package format

// AlignSlot returns n aligned up to the next SlotAlignment boundary.
//
// Example:
//
//	AlignSlot(1)  = 16
//	AlignSlot(16) = 16
//	AlignSlot(17) = 32
func AlignSlot(n uint64) uint64 {
	return (n + SlotAlignmentMask) &^ SlotAlignmentMask
}

// AlignPageDown rounds n down to a page boundary.
func AlignPageDown(n int64) int64 {
	return n &^ (PageSize - 1)
}

// AlignPageUp rounds n up to a page boundary.
func AlignPageUp(n int64) int64 {
	return (n + PageSize - 1) &^ (PageSize - 1)
}

// SlotSizeFor returns the slot size needed to hold a payload of n bytes.
func SlotSizeFor(n uint64) uint64 {
	sz := AlignSlot(n + SlotHeaderSize)
	if sz < MinSlotSize {
		sz = MinSlotSize
	}
	return sz
}

package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignSlot(t *testing.T) {
	cases := map[uint64]uint64{0: 0, 1: 16, 16: 16, 17: 32, 31: 32, 33: 48}
	for in, want := range cases {
		assert.Equal(t, want, AlignSlot(in), "AlignSlot(%d)", in)
	}
}

func TestSlotSizeFor(t *testing.T) {
	assert.Equal(t, uint64(MinSlotSize), SlotSizeFor(1))
	assert.Equal(t, uint64(MinSlotSize), SlotSizeFor(16))
	assert.Equal(t, uint64(64), SlotSizeFor(40))
	assert.Equal(t, uint64(48), SlotSizeFor(17))
}

func TestAlignPage(t *testing.T) {
	assert.Equal(t, int64(0), AlignPageDown(100))
	assert.Equal(t, int64(4096), AlignPageUp(100))
	assert.Equal(t, int64(8192), AlignPageDown(8192))
	assert.Equal(t, int64(8192), AlignPageUp(8192))
}

func TestMetaRoundTrip(t *testing.T) {
	meta := Meta(StateOccupied, 0xDEADBEEF)
	state, tag := SplitMeta(meta)
	assert.Equal(t, StateOccupied, state)
	assert.Equal(t, uint32(0xDEADBEEF), tag)
	assert.Equal(t, "occupied", state.String())
	assert.Equal(t, "invalid", SlotState(9).String())
}

func TestLayoutField(t *testing.T) {
	buf := make([]byte, HeaderSize)

	// A decomposed e-acute (e + U+0301) normalizes to the precomposed rune.
	tag, err := NormalizeLayout("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", tag)

	PutLayout(buf, tag)
	assert.Equal(t, tag, ReadLayout(buf))

	PutLayout(buf, "x")
	assert.Equal(t, "x", ReadLayout(buf), "shorter tag must clear the old bytes")

	_, err = NormalizeLayout(strings.Repeat("a", LayoutSize))
	require.ErrorIs(t, err, ErrLayoutTooLong)
}

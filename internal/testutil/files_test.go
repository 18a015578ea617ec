package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyAndPatch(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.pool")
	require.NoError(t, os.WriteFile(src, make([]byte, 32), 0o600))

	dst := CopyPool(t, src)
	assert.NotEqual(t, src, dst)
	PatchWord(t, dst, 8, 0xDEADBEEF)
	PatchFile(t, dst, 0, []byte("PM"))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "PM", string(got[:2]))
	assert.Equal(t, uint64(0xDEADBEEF), binary.LittleEndian.Uint64(got[8:]))

	orig, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 32), orig, "source untouched")
}

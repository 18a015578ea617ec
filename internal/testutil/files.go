// Package testutil holds helpers shared by tests that damage or clone
// pool files on disk.
package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CopyPool copies the pool file at src into a fresh temporary directory
// and returns the copy's path. Tests corrupt the copy and keep the
// original intact.
//
// Example:
//
//	bad := testutil.CopyPool(t, path)
//	testutil.PatchFile(t, bad, 0, []byte("XXXX"))
func CopyPool(t *testing.T, src string) string {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	dst := filepath.Join(t.TempDir(), filepath.Base(src)+".copy")
	require.NoError(t, os.WriteFile(dst, data, 0o600))
	return dst
}

// PatchFile overwrites len(b) bytes of the file at off.
func PatchFile(t *testing.T, path string, off int64, b []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteAt(b, off)
	require.NoError(t, err)
}

// PatchWord overwrites the little-endian word at off.
func PatchWord(t *testing.T, path string, off int64, v uint64) {
	t.Helper()
	var w [8]byte
	binary.LittleEndian.PutUint64(w[:], v)
	PatchFile(t, path, off, w[:])
}

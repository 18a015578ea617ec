package kv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigTyped(t *testing.T) {
	cfg := NewConfig()
	cfg.PutString(KeyPath, "/tmp/kv.pool")
	cfg.PutUint64(KeySize, 8<<20)

	path, err := cfg.GetString(KeyPath)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/kv.pool", path)

	size, err := cfg.GetUint64(KeySize)
	require.NoError(t, err)
	assert.Equal(t, uint64(8<<20), size)

	_, err = cfg.GetUint64(KeyPath)
	require.ErrorIs(t, err, ErrConfig)
	_, err = cfg.GetString(KeySize)
	require.ErrorIs(t, err, ErrConfig)
	_, err = cfg.GetString(KeyLayout)
	require.ErrorIs(t, err, ErrConfig)

	assert.Equal(t, []string{KeyPath, KeySize}, cfg.Keys())
}

func TestConfigFlag(t *testing.T) {
	cfg := NewConfig()
	on, err := cfg.flag(KeyForceCreate)
	require.NoError(t, err)
	assert.False(t, on)

	cfg.PutUint64(KeyForceCreate, 1)
	on, err = cfg.flag(KeyForceCreate)
	require.NoError(t, err)
	assert.True(t, on)

	cfg.PutUint64(KeyForceCreate, 2)
	_, err = cfg.flag(KeyForceCreate)
	require.ErrorIs(t, err, ErrConfig)
}

func TestLoadConfig(t *testing.T) {
	src := `
path: /mnt/pmem/kv.pool
size: 67108864
force_create: true
layout: bench
`
	cfg, err := LoadConfig(strings.NewReader(src))
	require.NoError(t, err)

	path, err := cfg.GetString(KeyPath)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/pmem/kv.pool", path)

	size, err := cfg.GetUint64(KeySize)
	require.NoError(t, err)
	assert.Equal(t, uint64(64<<20), size)

	force, err := cfg.GetUint64(KeyForceCreate)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), force)

	layout, err := cfg.GetString(KeyLayout)
	require.NoError(t, err)
	assert.Equal(t, "bench", layout)
}

func TestLoadConfig_Errors(t *testing.T) {
	cases := map[string]string{
		"negative": "size: -1\n",
		"float":    "size: 1.5\n",
		"list":     "path: [a, b]\n",
		"syntax":   "path: [\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(strings.NewReader(src))
			require.ErrorIs(t, err, ErrConfig)
		})
	}

	cfg, err := LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, cfg.Keys())
}

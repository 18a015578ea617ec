package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitTextAndDiscard(t *testing.T) {
	t.Cleanup(func() { Init(Options{}) })

	var buf bytes.Buffer
	Init(Options{Enabled: true, Writer: &buf, Level: slog.LevelDebug})
	L.Debug("pool opened", "path", "/tmp/x")
	assert.Contains(t, buf.String(), "pool opened")
	assert.Contains(t, buf.String(), "path=/tmp/x")

	buf.Reset()
	Init(Options{})
	L.Info("dropped")
	assert.Empty(t, buf.String())
}

func TestInitJSON(t *testing.T) {
	t.Cleanup(func() { Init(Options{}) })

	var buf bytes.Buffer
	Init(Options{Enabled: true, Writer: &buf, JSON: true})
	L.Debug("below level")
	L.Info("recovered", "records", 3)
	assert.NotContains(t, buf.String(), "below level")
	assert.Contains(t, buf.String(), `"records":3`)
}

func TestOr(t *testing.T) {
	own := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, own, Or(own))
	assert.Same(t, L, Or(nil))
}

package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "remoteplay.log")

	log, err := New("warn", "json", fn)
	require.NoError(t, err)
	log.Info("dropped")
	log.Warn("kept")
	_ = log.Sync()

	b, err := os.ReadFile(fn)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "dropped")
	assert.Contains(t, string(b), `"msg":"kept"`)
}

func TestParseLevel(t *testing.T) {
	for _, l := range []string{"debug", "info", "warn", "error", ""} {
		_, err := parseLevel(l)
		assert.NoError(t, err, l)
	}

	_, err := New("verbose", "text", "")
	assert.Error(t, err)
}

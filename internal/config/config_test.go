package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.Download.GetTickInterval())
	assert.Equal(t, 2048, cfg.Download.IdleChunkSize)
	assert.Equal(t, 4, cfg.Download.MaxStreams)
	assert.Equal(t, 8, cfg.Download.MaxConcurrent)
	assert.True(t, cfg.Download.RejectZeroPayload)
	assert.Zero(t, cfg.Download.GetTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.Playback.GetOutputBuffer())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Cache.Dir)
}

func TestLoadFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(fn, []byte(`
download:
  tick_interval: 20ms
  max_streams: 2
cache:
  dir: /tmp/audio
logging:
  level: debug
  format: json
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(fn)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, cfg.Download.GetTickInterval())
	assert.Equal(t, 2, cfg.Download.MaxStreams)
	assert.Equal(t, "/tmp/audio", cfg.Cache.Dir)
	assert.Equal(t, "json", cfg.Logging.Format)
	// untouched keys keep defaults
	assert.Equal(t, 3, cfg.Download.OpenAttempts)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("REMOTEPLAY_LOGGING_LEVEL", "warn")
	t.Setenv("REMOTEPLAY_DOWNLOAD_MAX_CONCURRENT", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Download.MaxConcurrent)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"idle chunk":  func(c *Config) { c.Download.IdleChunkSize = 0 },
		"streams":     func(c *Config) { c.Download.MaxStreams = 0 },
		"concurrency": func(c *Config) { c.Download.MaxConcurrent = 100 },
		"attempts":    func(c *Config) { c.Download.OpenAttempts = 0 },
		"tick":        func(c *Config) { c.Download.TickInterval = "often" },
		"quality":     func(c *Config) { c.Playback.ResampleQuality = 0 },
		"level":       func(c *Config) { c.Logging.Level = "trace" },
		"format":      func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mod := range cases {
		c := *base
		mod(&c)
		assert.Error(t, c.Validate(), name)
	}
}

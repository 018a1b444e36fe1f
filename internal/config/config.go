package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Download DownloadConfig `mapstructure:"download"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DownloadConfig contains the download manager tunables
type DownloadConfig struct {
	TickInterval      string `mapstructure:"tick_interval"`
	IdleChunkSize     int    `mapstructure:"idle_chunk_size"`
	MaxStreams        int    `mapstructure:"max_streams"`
	MaxConcurrent     int    `mapstructure:"max_concurrent"`
	OpenAttempts      int    `mapstructure:"open_attempts"`
	UserAgent         string `mapstructure:"user_agent"`
	RejectZeroPayload bool   `mapstructure:"reject_zero_payload"`
	Timeout           string `mapstructure:"timeout"`
}

// CacheConfig contains cache settings
type CacheConfig struct {
	Dir      string `mapstructure:"dir"`
	Disabled bool   `mapstructure:"disabled"`
}

// PlaybackConfig contains audio output settings
type PlaybackConfig struct {
	IdleInterval    string `mapstructure:"idle_interval"`
	OutputBuffer    string `mapstructure:"output_buffer"`
	ResampleQuality int    `mapstructure:"resample_quality"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load loads configuration from the specified file path. An empty path
// only uses defaults and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("download.tick_interval", "50ms")
	v.SetDefault("download.idle_chunk_size", 2048)
	v.SetDefault("download.max_streams", 4)
	v.SetDefault("download.max_concurrent", 8)
	v.SetDefault("download.open_attempts", 3)
	v.SetDefault("download.user_agent", "remoteplay/1.0")
	v.SetDefault("download.reject_zero_payload", true)
	v.SetDefault("download.timeout", "0s")
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.disabled", false)
	v.SetDefault("playback.idle_interval", "50ms")
	v.SetDefault("playback.output_buffer", "100ms")
	v.SetDefault("playback.resample_quality", 4)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetEnvPrefix("remoteplay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Download.IdleChunkSize <= 0 {
		return errors.New("download.idle_chunk_size must be positive")
	}
	if c.Download.MaxStreams < 1 {
		return errors.New("download.max_streams must be at least 1")
	}
	if c.Download.MaxConcurrent < 1 || c.Download.MaxConcurrent > 64 {
		return errors.New("download.max_concurrent must be between 1 and 64")
	}
	if c.Download.OpenAttempts < 1 {
		return errors.New("download.open_attempts must be at least 1")
	}

	durations := map[string]string{
		"download.tick_interval": c.Download.TickInterval,
		"download.timeout":       c.Download.Timeout,
		"playback.idle_interval": c.Playback.IdleInterval,
		"playback.output_buffer": c.Playback.OutputBuffer,
	}
	for key, val := range durations {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.Playback.ResampleQuality < 1 || c.Playback.ResampleQuality > 64 {
		return errors.New("playback.resample_quality must be between 1 and 64")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetTickInterval returns the tick interval as time.Duration
func (c *DownloadConfig) GetTickInterval() time.Duration {
	d, _ := time.ParseDuration(c.TickInterval)
	if d == 0 {
		return 50 * time.Millisecond
	}
	return d
}

// GetTimeout returns the http client timeout, 0 means none
func (c *DownloadConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// GetIdleInterval returns the idle interval as time.Duration
func (c *PlaybackConfig) GetIdleInterval() time.Duration {
	d, _ := time.ParseDuration(c.IdleInterval)
	if d == 0 {
		return 50 * time.Millisecond
	}
	return d
}

// GetOutputBuffer returns the audio device buffer as time.Duration
func (c *PlaybackConfig) GetOutputBuffer() time.Duration {
	d, _ := time.ParseDuration(c.OutputBuffer)
	if d == 0 {
		return 100 * time.Millisecond
	}
	return d
}

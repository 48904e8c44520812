package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "BoonLED", cfg.DeviceName)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, time.Second, cfg.ReadyPollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.IdlePollInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 10*time.Second, cfg.BackoffMax)
	assert.Equal(t, 5*time.Second, cfg.AckTimeout)
	assert.Equal(t, 3*time.Second, cfg.ConfigRegistrationTimeout)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, 64, cfg.IncomingBuffer)
	assert.Equal(t, 32, cfg.JournalSize)
	assert.Equal(t, 512, cfg.DesiredMTU)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("yaml overrides only listed keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "boonled.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"device_name: TrailRig\nack_timeout: 2s\nqueue_size: 16\nlog_level: debug\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "TrailRig", cfg.DeviceName)
		assert.Equal(t, 2*time.Second, cfg.AckTimeout)
		assert.Equal(t, 16, cfg.QueueSize)
		assert.Equal(t, logrus.DebugLevel, cfg.Level())
		assert.Equal(t, 10*time.Second, cfg.ScanTimeout, "unlisted keys keep defaults")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("ack_timeout: [1, 2\n"), 0o600))
		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to parse config")
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("queue_size: 0\n"), 0o600))
		_, err := Load(path)
		assert.ErrorContains(t, err, "queue_size must be positive")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"empty device name", func(c *Config) { c.DeviceName = "" }, "device_name"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"zero ack timeout", func(c *Config) { c.AckTimeout = 0 }, "ack_timeout must be positive"},
		{"backoff max below base", func(c *Config) { c.BackoffMax = 100 * time.Millisecond }, "backoff_max"},
		{"negative incoming buffer", func(c *Config) { c.IncomingBuffer = -1 }, "incoming_buffer must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", expected: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "falls back to info on garbage", logLevel: "chatty", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

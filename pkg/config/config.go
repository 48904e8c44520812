// Package config holds the tunables of the BoonLED connection manager and
// builds the application logger.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel   string `yaml:"log_level" default:"info"`
	DeviceName string `yaml:"device_name" default:"BoonLED"`

	// Connection lifecycle
	ScanTimeout       time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" default:"10s"`
	ReadyPollInterval time.Duration `yaml:"ready_poll_interval" default:"1s"`
	IdlePollInterval  time.Duration `yaml:"idle_poll_interval" default:"500ms"`
	BackoffBase       time.Duration `yaml:"backoff_base" default:"250ms"`
	BackoffMax        time.Duration `yaml:"backoff_max" default:"10s"`
	DesiredMTU        int           `yaml:"desired_mtu" default:"512"`

	// Write pipeline
	AckTimeout                time.Duration `yaml:"ack_timeout" default:"5s"`
	ConfigRegistrationTimeout time.Duration `yaml:"config_registration_timeout" default:"3s"`
	QueueSize                 int           `yaml:"queue_size" default:"64"`
	IncomingBuffer            int           `yaml:"incoming_buffer" default:"64"`
	JournalSize               int           `yaml:"journal_size" default:"32"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the manager cannot run with.
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"scan_timeout", c.ScanTimeout},
		{"connect_timeout", c.ConnectTimeout},
		{"ready_poll_interval", c.ReadyPollInterval},
		{"idle_poll_interval", c.IdlePollInterval},
		{"backoff_base", c.BackoffBase},
		{"backoff_max", c.BackoffMax},
		{"ack_timeout", c.AckTimeout},
		{"config_registration_timeout", c.ConfigRegistrationTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("backoff_max (%s) must not be below backoff_base (%s)", c.BackoffMax, c.BackoffBase)
	}

	sizes := []struct {
		name  string
		value int
	}{
		{"queue_size", c.QueueSize},
		{"incoming_buffer", c.IncomingBuffer},
		{"journal_size", c.JournalSize},
	}
	for _, s := range sizes {
		if s.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", s.name, s.value)
		}
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

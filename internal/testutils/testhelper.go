package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/boonled/pkg/config"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// FastConfig returns the default configuration with every timing shrunk so
// reconnect and timeout paths run in milliseconds.
func FastConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.ScanTimeout = 150 * time.Millisecond
	cfg.ConnectTimeout = time.Second
	cfg.ReadyPollInterval = 20 * time.Millisecond
	cfg.IdlePollInterval = 20 * time.Millisecond
	cfg.BackoffBase = 5 * time.Millisecond
	cfg.BackoffMax = 40 * time.Millisecond
	cfg.AckTimeout = 200 * time.Millisecond
	cfg.ConfigRegistrationTimeout = 150 * time.Millisecond
	return cfg
}

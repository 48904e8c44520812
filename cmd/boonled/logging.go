package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/boonled/pkg/config"
)

// configureLogger loads --config and builds the logger.
//
// --log-level takes precedence over the file. Without either the console
// stays quiet so that command output is not interleaved with log lines.
func configureLogger(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	switch {
	case logLevelStr != "":
		switch logLevelStr {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = logLevelStr
		default:
			return nil, nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	case path == "":
		cfg.LogLevel = logrus.PanicLevel.String()
	}

	return cfg, cfg.NewLogger(), nil
}

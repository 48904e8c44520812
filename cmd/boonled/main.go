package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "boonled",
	Short: "Control a BoonLED lighting rig over Bluetooth LE",
	Long: `Command-line client for the BoonLED lighting rig:

- Find the rig and other peripherals nearby
- Configure the type and names of each LED controller
- Set colors, brightness and single outputs
- Recall and store scenes, or switch everything off
- Watch the connection state and rig notifications

Every command connects, waits for the rig to become ready, performs its
writes and waits for the rig to acknowledge them.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(colorCmd)
	rootCmd.AddCommand(brightnessCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(offCmd)
	rootCmd.AddCommand(sceneCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")
	rootCmd.PersistentFlags().Duration("ready-timeout", 30*time.Second, "How long to wait for the rig to become ready")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	rootCmd.SetVersionTemplate(fmt.Sprintf("boonled %s (commit %s, built %s)\n", formatVersion(version), commit, date))
}

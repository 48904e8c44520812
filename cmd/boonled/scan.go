package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/boonled/internal/device"
	"github.com/srg/boonled/pkg/ble"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE peripherals",
	Long: `Scan for Bluetooth Low Energy peripherals and list them, strongest
signal first. The configured rig name is highlighted.

Examples:
  # Everything in range for 5 seconds
  boonled scan -d 5s

  # Only peripherals advertising the BoonLED service, as JSON
  boonled scan --boonled --format json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanPrefix   string
	scanServices []string
	scanBoonLED  bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringVar(&scanPrefix, "prefix", "", "Only show peripherals whose name starts with this")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by advertised service UUIDs")
	scanCmd.Flags().BoolVar(&scanBoonLED, "boonled", false, "Only show peripherals advertising the BoonLED service")
}

// scanResult is the JSON shape of one discovered peripheral.
type scanResult struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	Services    []string  `json:"services,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	services := append([]string(nil), scanServices...)
	if scanBoonLED {
		services = append(services, ble.ServiceUUID)
	}
	if len(services) > 0 {
		if _, err := device.ValidateUUID(services...); err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", scanDuration)
	progress.Start()

	found, err := ble.Discover(ctx, newRadio(logger), ble.DiscoverOptions{
		Duration:     scanDuration,
		NamePrefix:   scanPrefix,
		ServiceUUIDs: services,
	}, logger)
	progress.Stop()
	if err != nil {
		return err
	}

	if scanFormat == "json" {
		return displayDevicesJSON(cmd.OutOrStdout(), found)
	}
	return displayDevicesTable(cmd.OutOrStdout(), found, cfg.DeviceName)
}

func displayDevicesTable(out io.Writer, devices []ble.DiscoveredDevice, highlight string) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	target := color.New(color.FgGreen, color.Bold)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, d := range devices {
		name := d.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		if d.Name == highlight {
			name = target.Sprint(name)
		}

		short := make([]string, len(d.Services))
		for i, u := range d.Services {
			short[i] = device.ShortenUUID(u)
		}
		services := strings.Join(short, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n",
			name, d.Address, d.RSSI, services, time.Since(d.LastSeen).Truncate(time.Second))
	}
	return w.Flush()
}

func displayDevicesJSON(out io.Writer, devices []ble.DiscoveredDevice) error {
	results := make([]scanResult, 0, len(devices))
	for _, d := range devices {
		results = append(results, scanResult(d))
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

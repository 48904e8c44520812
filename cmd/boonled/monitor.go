package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/boonled/pkg/ble"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the connection state and rig notifications",
	Long: `Keeps a connection to the rig and prints every connection state change
and every payload the rig sends, until Ctrl+C or --duration elapses. Link
losses are retried with backoff like in every other command.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

var (
	monitorDuration time.Duration
	monitorRead     bool
)

func init() {
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
	monitorCmd.Flags().BoolVar(&monitorRead, "read", false, "Read the rig configuration after every connect")
}

var stateColors = map[ble.StateKind]*color.Color{
	ble.StateConnected:    color.New(color.FgGreen),
	ble.StateDisconnected: color.New(color.FgYellow),
	ble.StateError:        color.New(color.FgRed),
}

func formatState(st ble.ConnectionState) string {
	if c, ok := stateColors[st.Kind]; ok {
		return c.Sprint(st.String())
	}
	return color.New(color.FgCyan).Sprint(st.String())
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()
	if monitorDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, monitorDuration)
		defer stop()
	}

	m := ble.NewManager(newRadio(logger), cfg, logger)
	states, unsubscribe := m.SubscribeState()
	defer unsubscribe()

	m.Start()
	defer m.Stop()

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			if n := m.DroppedIncoming(); n > 0 {
				printLine(out, "monitor", color.New(color.FgYellow).Sprintf("%d payloads dropped while output lagged", n))
			}
			return nil
		case st := <-states:
			printLine(out, "state", formatState(st))
			if st.Kind == ble.StateConnected && monitorRead {
				if err := m.RequestRead(ble.ReadConfig); err != nil {
					logger.WithError(err).Warn("Configuration read not issued")
				}
			}
		case in := <-m.Incoming():
			printLine(out, in.Channel.String(), string(in.Data))
		}
	}
}

func printLine(out io.Writer, source, text string) {
	fmt.Fprintf(out, "%s  %-11s %s\n", time.Now().Format("15:04:05.000"), source, text)
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/boonled/internal/device"
	goble "github.com/srg/boonled/internal/device/go-ble"
	"github.com/srg/boonled/pkg/ble"
)

// newRadio builds the platform radio. Tests swap it for a fake.
var newRadio = func(logger *logrus.Logger) device.Radio {
	return goble.NewRadio(logger)
}

// signalContext is cancelled by Ctrl+C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// withManager connects to the rig, waits until it is ready and runs fn.
// The manager is stopped when fn returns, so fn must wait for every write
// it cares about.
func withManager(cmd *cobra.Command, fn func(ctx context.Context, m *ble.Manager) error) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	readyTimeout, _ := cmd.Flags().GetDuration("ready-timeout")

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	m := ble.NewManager(newRadio(logger), cfg, logger)
	m.Start()
	defer m.Stop()

	if err := waitReady(ctx, cmd.ErrOrStderr(), m, cfg.DeviceName, readyTimeout); err != nil {
		return err
	}
	return fn(ctx, m)
}

// waitReady shows the connection phase until the manager reports Connected.
func waitReady(ctx context.Context, out io.Writer, m *ble.Manager, name string, timeout time.Duration) error {
	states, unsubscribe := m.SubscribeState()
	defer unsubscribe()

	progress := NewProgressPrinter(out, fmt.Sprintf("Connecting to %s", name), ble.StateIdle.String())
	progress.Start()
	defer progress.Stop()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	last := m.ConnectionState()
	for {
		if last.Kind == ble.StateConnected && m.IsReady() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w within %s (last state: %s)", ErrNotReady, timeout, last)
		case st := <-states:
			last = st
			progress.SetPhase(st.Kind.String())
		}
	}
}

// writeAndWait enqueues req and waits for the rig to acknowledge it.
func writeAndWait(ctx context.Context, m *ble.Manager, req ble.WriteRequest) error {
	if err := m.SendWait(ctx, req); err != nil {
		return fmt.Errorf("%s write failed: %w", req.Target, err)
	}
	return nil
}

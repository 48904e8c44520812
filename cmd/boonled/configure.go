package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/boonled/pkg/ble"
	"github.com/srg/boonled/pkg/message"
)

// configureCmd represents the configure command
var configureCmd = &cobra.Command{
	Use:   "configure <controller> <type>",
	Short: "Set the type and names of an LED controller",
	Long: `Configures controller 1-4 as RGBW, RGB+1 or 4Chan and waits until the rig
acknowledged it.

Examples:
  boonled configure 1 RGBW
  boonled configure 3 rgb+1 --name Awning --chan RGB=Strip --chan W=Porch`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigure,
}

var (
	configureName  string
	configureChans []string
)

func init() {
	configureCmd.Flags().StringVar(&configureName, "name", "", "Controller name (default \"Controller <id>\")")
	configureCmd.Flags().StringSliceVar(&configureChans, "chan", nil, "Output name as OUTPUT=NAME, repeatable")
}

// controllerSpec is a validated controller id with the configuration to
// register for it.
type controllerSpec struct {
	id      int
	key     string
	typ     message.ControllerType
	payload []byte
}

// newControllerSpec validates id and, when typ is set, builds the default
// configuration payload.
func newControllerSpec(id int, typ string) (*controllerSpec, error) {
	key, err := message.ControllerID(id)
	if err != nil {
		return nil, err
	}
	spec := &controllerSpec{id: id, key: key}
	if typ == "" {
		return spec, nil
	}
	if spec.typ, err = message.ParseControllerType(typ); err != nil {
		return nil, err
	}
	spec.payload, err = message.SetType(id, spec.typ, "", nil)
	return spec, err
}

// configure registers the controller configuration and waits until the rig
// acknowledged it on the current link.
func (c *controllerSpec) configure(ctx context.Context, m *ble.Manager) error {
	if err := m.ConfigureController(ctx, c.key, c.payload); err != nil {
		return fmt.Errorf("configure controller %d: %w", c.id, err)
	}
	if err := m.WaitConfigured(ctx, c.key); err != nil {
		return fmt.Errorf("configure controller %d: %w", c.id, err)
	}
	return nil
}

func parseControllerArg(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid controller id %q", s)
	}
	if _, err := message.ControllerID(id); err != nil {
		return 0, err
	}
	return id, nil
}

func parseChanNames(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	names := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid --chan %q: want OUTPUT=NAME", p)
		}
		names[k] = v
	}
	return names, nil
}

func runConfigure(cmd *cobra.Command, args []string) error {
	id, err := parseControllerArg(args[0])
	if err != nil {
		return err
	}
	spec, err := newControllerSpec(id, args[1])
	if err != nil {
		return err
	}
	chans, err := parseChanNames(configureChans)
	if err != nil {
		return err
	}
	if configureName != "" || chans != nil {
		if spec.payload, err = message.SetType(id, spec.typ, configureName, chans); err != nil {
			return err
		}
	}

	return withManager(cmd, func(ctx context.Context, m *ble.Manager) error {
		if err := spec.configure(ctx, m); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Controller %d configured as %s\n", id, spec.typ)
		return nil
	})
}

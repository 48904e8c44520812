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

var colorCmd = &cobra.Command{
	Use:   "color <controller> <r> <g> <b> [w]",
	Short: "Set the color of a controller",
	Long: `Configures the controller with --type, then sets its color. W is only sent
to RGBW controllers.

Examples:
  boonled color 1 255 0 0 0
  boonled color 3 128 128 128 --type rgb+1`,
	Args: cobra.RangeArgs(4, 5),
	RunE: runColor,
}

var brightnessCmd = &cobra.Command{
	Use:   "brightness <controller> <output> <level>",
	Short: "Set the brightness of one controller output",
	Args:  cobra.ExactArgs(3),
	RunE:  runBrightness,
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <controller> <output> <on|off>",
	Short: "Switch one controller output fully on or off",
	Args:  cobra.ExactArgs(3),
	RunE:  runToggle,
}

var ledType string

func init() {
	for _, c := range []*cobra.Command{colorCmd, brightnessCmd, toggleCmd} {
		c.Flags().StringVar(&ledType, "type", string(message.RGBW), "Controller type (RGBW, RGB+1, 4Chan)")
	}
}

func parseLevel(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid level %q: want 0-255", s)
	}
	return uint8(v), nil
}

// controllerWrite configures the controller and sends payload to ch once the
// configuration is acknowledged.
func controllerWrite(cmd *cobra.Command, spec *controllerSpec, ch ble.Channel, payload []byte) error {
	return withManager(cmd, func(ctx context.Context, m *ble.Manager) error {
		if err := spec.configure(ctx, m); err != nil {
			return err
		}
		req := ble.WriteRequest{Target: ch, Payload: payload, Controller: spec.key}
		if err := writeAndWait(ctx, m, req); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Controller %d: %s %s\n", spec.id, ch, payload)
		return nil
	})
}

func runColor(cmd *cobra.Command, args []string) error {
	id, err := parseControllerArg(args[0])
	if err != nil {
		return err
	}
	spec, err := newControllerSpec(id, ledType)
	if err != nil {
		return err
	}

	var levels [4]uint8
	for i, a := range args[1:] {
		if levels[i], err = parseLevel(a); err != nil {
			return err
		}
	}
	payload, err := message.Color(id, spec.typ, levels[0], levels[1], levels[2], levels[3])
	if err != nil {
		return err
	}
	return controllerWrite(cmd, spec, ble.LedSet, payload)
}

func runBrightness(cmd *cobra.Command, args []string) error {
	id, err := parseControllerArg(args[0])
	if err != nil {
		return err
	}
	spec, err := newControllerSpec(id, ledType)
	if err != nil {
		return err
	}
	level, err := parseLevel(args[2])
	if err != nil {
		return err
	}
	payload, err := message.ChannelLevel(id, strings.ToUpper(args[1]), level)
	if err != nil {
		return err
	}
	return controllerWrite(cmd, spec, ble.BrightSet, payload)
}

func runToggle(cmd *cobra.Command, args []string) error {
	id, err := parseControllerArg(args[0])
	if err != nil {
		return err
	}
	spec, err := newControllerSpec(id, ledType)
	if err != nil {
		return err
	}

	var on bool
	switch strings.ToLower(args[2]) {
	case "on", "1", "true":
		on = true
	case "off", "0", "false":
	default:
		return fmt.Errorf("invalid state %q: want on or off", args[2])
	}
	payload, err := message.Toggle(id, strings.ToUpper(args[1]), on)
	if err != nil {
		return err
	}
	return controllerWrite(cmd, spec, ble.LedSet, payload)
}

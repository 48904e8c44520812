package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/boonled/internal/device"
	"github.com/srg/boonled/pkg/ble"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <channel> <data>",
	Short: "Write a raw payload to a rig channel",
	Long: `Writes data to one of the rig channels and waits for the acknowledgment.

Channels: LedSet, BrightSet, AllOff, SceneSelect, SceneSave, CtrlTypeSet,
ReadConfig, or a characteristic UUID.

Examples:
  boonled send allOff '{"1":"off"}'
  boonled send ledset 7b7d --hex
  boonled send ledset '{"2":{"B":255}}' --controller 2 --type 4Chan`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var (
	sendHex        bool
	sendNoResponse bool
	sendController int
	sendType       string
)

func init() {
	sendCmd.Flags().BoolVar(&sendHex, "hex", false, "Parse data as hex (e.g. 'FF01'); raw text by default")
	sendCmd.Flags().BoolVar(&sendNoResponse, "no-response", false, "Write without response")
	sendCmd.Flags().IntVar(&sendController, "controller", 0, "Controller id (1-4) the write belongs to")
	sendCmd.Flags().StringVar(&sendType, "type", "", "Controller type to configure before a --controller write")
}

func parseSendData(s string, isHex bool) ([]byte, error) {
	if !isHex {
		return []byte(s), nil
	}
	s = strings.TrimPrefix(strings.ReplaceAll(s, " ", ""), "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	ch, err := ble.ParseChannel(args[0])
	if err != nil {
		return err
	}
	data, err := parseSendData(args[1], sendHex)
	if err != nil {
		return err
	}

	req := ble.WriteRequest{Target: ch, Payload: data}
	if sendNoResponse {
		req.Kind = device.WriteNoResponse
	}

	var ctrl *controllerSpec
	if sendController != 0 {
		spec, err := newControllerSpec(sendController, sendType)
		if err != nil {
			return err
		}
		ctrl = spec
		req.Controller = spec.key
	}

	return withManager(cmd, func(ctx context.Context, m *ble.Manager) error {
		if ctrl != nil && ctrl.typ != "" {
			if err := ctrl.configure(ctx, m); err != nil {
				return err
			}
		}
		if err := writeAndWait(ctx, m, req); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(data), ch)
		return nil
	})
}

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/srg/boonled/pkg/ble"
	"github.com/srg/boonled/pkg/message"
)

var offCmd = &cobra.Command{
	Use:   "off",
	Short: "Switch every output of every controller off",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withManager(cmd, func(ctx context.Context, m *ble.Manager) error {
			if err := writeAndWait(ctx, m, ble.WriteRequest{Target: ble.AllOff, Payload: message.AllOff()}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All outputs off")
			return nil
		})
	},
}

var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Recall or store a scene",
}

var sceneSelectCmd = &cobra.Command{
	Use:   "select <scene>",
	Short: "Recall scene 1-4",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid scene %q", args[0])
		}
		payload, err := message.SceneSelect(n)
		if err != nil {
			return err
		}
		return sceneWrite(cmd, ble.SceneSelect, payload, fmt.Sprintf("Scene %d recalled", n))
	},
}

var sceneSaveCmd = &cobra.Command{
	Use:   "save <scene> <name>",
	Short: "Store the current outputs as scene 1-4",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid scene %q", args[0])
		}
		payload, err := message.SceneSave(n, args[1])
		if err != nil {
			return err
		}
		return sceneWrite(cmd, ble.SceneSave, payload, fmt.Sprintf("Scene %d saved as %q", n, args[1]))
	},
}

func init() {
	sceneCmd.AddCommand(sceneSelectCmd)
	sceneCmd.AddCommand(sceneSaveCmd)
}

func sceneWrite(cmd *cobra.Command, ch ble.Channel, payload []byte, done string) error {
	return withManager(cmd, func(ctx context.Context, m *ble.Manager) error {
		if err := writeAndWait(ctx, m, ble.WriteRequest{Target: ch, Payload: payload}); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), done)
		return nil
	})
}

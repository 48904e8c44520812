package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/boonled/internal/device"
	"github.com/srg/boonled/internal/testutils"
	"github.com/srg/boonled/pkg/ble"
	"github.com/srg/boonled/pkg/config"
	"gopkg.in/yaml.v3"
)

// TestDeviceAddress is the address of the fake rig.
const TestDeviceAddress = "00:00:00:00:00:01"

// CommandTestSuite runs commands against a fake rig that acknowledges every write.
// All cmd/boonled test suites should embed this instead of FakeRadioSuite.
type CommandTestSuite struct {
	testutils.FakeRadioSuite

	ConfigPath string
}

func (s *CommandTestSuite) SetupTest() {
	s.FakeRadioSuite.SetupTest()
	s.Radio.
		WithPeripheral("BoonLED", TestDeviceAddress).
		WithService(ble.ServiceUUID, rigCharacteristics()...).
		WithAckMode(testutils.AckSuccess)

	prev := newRadio
	newRadio = func(*logrus.Logger) device.Radio { return s.Radio }
	s.T().Cleanup(func() { newRadio = prev })

	s.ConfigPath = s.WriteConfig(s.Config)
}

func rigCharacteristics() []*testutils.FakeCharacteristic {
	var out []*testutils.FakeCharacteristic
	for _, ch := range ble.Channels() {
		out = append(out, testutils.NewFakeCharacteristic(ch.UUID(), ch == ble.ReadConfig))
	}
	return out
}

// WriteConfig stores cfg as YAML and returns the file path.
func (s *CommandTestSuite) WriteConfig(cfg *config.Config) string {
	data, err := yaml.Marshal(cfg)
	s.Require().NoError(err)
	path := filepath.Join(s.T().TempDir(), "boonled.yaml")
	s.Require().NoError(os.WriteFile(path, data, 0o600))
	return path
}

// ExecuteCommand runs the root command with args and the suite config, and
// returns what the command printed to stdout.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	resetFlags(rootCmd)

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(append(args, "--config", s.ConfigPath))
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default, since commands and their
// flag sets are package globals shared by all tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

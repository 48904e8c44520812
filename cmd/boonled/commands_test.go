package main

import (
	"testing"

	"github.com/srg/boonled/internal/device"
	"github.com/srg/boonled/internal/testutils"
	"github.com/srg/boonled/pkg/ble"
	"github.com/stretchr/testify/suite"
)

type CommandsSuite struct {
	CommandTestSuite
}

func TestCommandsSuite(t *testing.T) {
	suite.Run(t, new(CommandsSuite))
}

func (s *CommandsSuite) requireWrites(ch ble.Channel, n int) []testutils.FakeWrite {
	writes := s.Radio.WritesTo(ch.UUID())
	s.Require().Len(writes, n, "writes to %s", ch)
	return writes
}

func (s *CommandsSuite) TestOff() {
	out, err := s.ExecuteCommand("off")
	s.Require().NoError(err)
	s.Contains(out, "All outputs off")

	writes := s.requireWrites(ble.AllOff, 1)
	s.Equal(`{"1":"off"}`, string(writes[0].Data))
}

func (s *CommandsSuite) TestConfigure() {
	out, err := s.ExecuteCommand("configure", "3", "rgb+1", "--name", "Awning", "--chan", "RGB=Strip", "--chan", "W=Porch")
	s.Require().NoError(err)
	s.Contains(out, "Controller 3 configured as RGB+1")

	writes := s.Radio.WritesTo(ble.CtrlTypeSet.UUID())
	s.Require().NotEmpty(writes)
	testutils.NewJSONAsserter(s.T()).AssertBytes(writes[0].Data,
		`{"3":{"Type":"RGB+1","Name":"Awning","ChanNames":{"RGB":"Strip","W":"Porch"}}}`)
}

func (s *CommandsSuite) TestConfigureRejectsBadInput() {
	_, err := s.ExecuteCommand("configure", "7", "RGBW")
	s.ErrorContains(err, "out of range")

	_, err = s.ExecuteCommand("configure", "1", "RGB")
	s.ErrorContains(err, "unknown controller type")

	_, err = s.ExecuteCommand("configure", "1", "RGBW", "--chan", "oops")
	s.ErrorContains(err, "OUTPUT=NAME")

	s.Zero(s.Radio.ConnectCount(), "invalid input must not touch the radio")
}

func (s *CommandsSuite) TestColorConfiguresBeforeWriting() {
	_, err := s.ExecuteCommand("color", "1", "255", "0", "0", "0")
	s.Require().NoError(err)

	// a configuration replay racing the first registration may add a duplicate
	writes := s.Radio.Writes()
	s.Require().GreaterOrEqual(len(writes), 2)
	last := writes[len(writes)-1]
	s.Equal(ble.CtrlTypeSet.UUID(), writes[0].UUID)
	s.Equal(ble.LedSet.UUID(), last.UUID)
	s.Len(s.Radio.WritesTo(ble.LedSet.UUID()), 1)

	ja := testutils.NewJSONAsserter(s.T())
	ja.AssertBytes(writes[0].Data, `{"1":{"Type":"RGBW","Name":"Controller 1","ChanNames":{"RGBW":"User Channel 1"}}}`)
	ja.AssertBytes(last.Data, `{"1":{"R":255,"G":0,"B":0,"W":0}}`)
}

func (s *CommandsSuite) TestColorWithoutWhite() {
	_, err := s.ExecuteCommand("color", "3", "1", "2", "3", "--type", "rgb+1")
	s.Require().NoError(err)

	writes := s.requireWrites(ble.LedSet, 1)
	testutils.NewJSONAsserter(s.T()).AssertBytes(writes[0].Data, `{"3":{"R":1,"G":2,"B":3}}`)

	// default output names are covered by the message tests
	config := s.Radio.WritesTo(ble.CtrlTypeSet.UUID())
	s.Require().NotEmpty(config)
	testutils.NewJSONAsserter(s.T(), testutils.IgnoringFields("ChanNames")).
		AssertBytes(config[0].Data, `{"3":{"Type":"RGB+1","Name":"Controller 3"}}`)
}

func (s *CommandsSuite) TestColorRejectsLevel() {
	_, err := s.ExecuteCommand("color", "1", "256", "0", "0")
	s.ErrorContains(err, "0-255")
}

func (s *CommandsSuite) TestBrightnessAndToggle() {
	_, err := s.ExecuteCommand("brightness", "2", "w", "3", "--type", "4chan")
	s.Require().NoError(err)
	writes := s.requireWrites(ble.BrightSet, 1)
	s.Equal(`{"2":{"W":3}}`, string(writes[0].Data))

	_, err = s.ExecuteCommand("toggle", "2", "b", "on", "--type", "4Chan")
	s.Require().NoError(err)
	writes = s.requireWrites(ble.LedSet, 1)
	s.Equal(`{"2":{"B":255}}`, string(writes[0].Data))

	_, err = s.ExecuteCommand("toggle", "2", "b", "maybe")
	s.ErrorContains(err, "want on or off")
}

func (s *CommandsSuite) TestScenes() {
	out, err := s.ExecuteCommand("scene", "select", "3")
	s.Require().NoError(err)
	s.Contains(out, "Scene 3 recalled")
	writes := s.requireWrites(ble.SceneSelect, 1)
	s.Equal(`{"LEDScene":"3"}`, string(writes[0].Data))

	out, err = s.ExecuteCommand("scene", "save", "2", "Campfire")
	s.Require().NoError(err)
	s.Contains(out, `Scene 2 saved as "Campfire"`)
	writes = s.requireWrites(ble.SceneSave, 1)
	s.Equal(`{"2":"Campfire"}`, string(writes[0].Data))

	_, err = s.ExecuteCommand("scene", "save", "2", "WayTooLongName")
	s.ErrorContains(err, "limit is 10")
}

func (s *CommandsSuite) TestSendHexWithoutResponse() {
	out, err := s.ExecuteCommand("send", "ledset", "7b7d", "--hex", "--no-response")
	s.Require().NoError(err)
	s.Contains(out, "Wrote 2 bytes to LedSet")

	writes := s.requireWrites(ble.LedSet, 1)
	s.Equal([]byte("{}"), writes[0].Data)
	s.Equal(device.WriteNoResponse, writes[0].Kind)
}

func (s *CommandsSuite) TestSendForUnconfiguredController() {
	_, err := s.ExecuteCommand("send", "ledset", "x", "--controller", "2")
	s.ErrorIs(err, ble.ErrControllerNotRegistered)
	s.Contains(FormatUserError(err), "configure the controller first")
	s.Empty(s.Radio.WritesTo(ble.LedSet.UUID()))
}

func (s *CommandsSuite) TestSendForControllerWithType() {
	_, err := s.ExecuteCommand("send", "ledset", `{"2":{"B":255}}`, "--controller", "2", "--type", "4Chan")
	s.Require().NoError(err)

	writes := s.Radio.Writes()
	s.Require().GreaterOrEqual(len(writes), 2)
	s.Equal(ble.CtrlTypeSet.UUID(), writes[0].UUID)
	s.Equal(ble.LedSet.UUID(), writes[len(writes)-1].UUID)
}

func (s *CommandsSuite) TestSendRejectsBadInput() {
	_, err := s.ExecuteCommand("send", "nope", "x")
	s.ErrorContains(err, "unknown channel")

	_, err = s.ExecuteCommand("send", "ledset", "zz", "--hex")
	s.ErrorContains(err, "invalid hex data")

	s.Zero(s.Radio.ConnectCount())
}

func (s *CommandsSuite) TestNotReadyWithinTimeout() {
	s.Radio = testutils.NewFakeRadio(s.Logger)

	_, err := s.ExecuteCommand("off", "--ready-timeout", "200ms")
	s.ErrorIs(err, ErrNotReady)
	s.Contains(FormatUserError(err), "--ready-timeout")
}

func (s *CommandsSuite) TestInvalidLogLevel() {
	_, err := s.ExecuteCommand("off", "--log-level", "loud")
	s.ErrorContains(err, "invalid log level")
}

func (s *CommandsSuite) TestScanJSON() {
	s.Radio.WithAdvertisement(testutils.NewAdvertisementBuilder().FromJSON(
		`{"name":"Speaker","address":"%s","rssi":-80,"connectable":false,"services":["0x180F"]}`,
		"00:00:00:00:00:09").Build())

	out, err := s.ExecuteCommand("scan", "-d", "50ms", "-f", "json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(out, testutils.MustJSON([]map[string]any{
		{
			"name":        "BoonLED",
			"address":     TestDeviceAddress,
			"rssi":        -50,
			"connectable": true,
			"last_seen":   testutils.AnyValue,
		},
		{
			"name":        "Speaker",
			"address":     "00:00:00:00:00:09",
			"rssi":        -80,
			"connectable": false,
			"services":    []string{"180f"},
			"last_seen":   testutils.AnyValue,
		},
	}))
}

func (s *CommandsSuite) TestScanTableWithPrefix() {
	s.Radio.WithAdvertisement(testutils.NewAdvertisementBuilder().
		WithName("Speaker").WithAddress("00:00:00:00:00:09").Build())

	out, err := s.ExecuteCommand("scan", "-d", "50ms", "--prefix", "Boon")
	s.Require().NoError(err)
	s.Contains(out, "NAME")
	s.Contains(out, TestDeviceAddress)
	s.NotContains(out, "Speaker")
}

func (s *CommandsSuite) TestScanNothingFound() {
	s.Radio = testutils.NewFakeRadio(s.Logger)

	out, err := s.ExecuteCommand("scan", "-d", "30ms")
	s.Require().NoError(err)
	s.Contains(out, "No devices discovered")
}

func (s *CommandsSuite) TestScanInvalidFormat() {
	_, err := s.ExecuteCommand("scan", "-f", "xml")
	s.ErrorContains(err, "invalid format")
}

func (s *CommandsSuite) TestMonitor() {
	s.Radio.SetReadValue(ble.ReadConfig.UUID(), []byte(`{"1":"RGBW"}`))

	out, err := s.ExecuteCommand("monitor", "-d", "400ms", "--read")
	s.Require().NoError(err)
	s.Contains(out, "Scanning")
	s.Contains(out, "Connected(BoonLED, "+TestDeviceAddress+")")
	s.Contains(out, `ReadConfig  {"1":"RGBW"}`)
}

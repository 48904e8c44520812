package testutils

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/boonled/pkg/config"
	"github.com/stretchr/testify/suite"
)

// FakeRadioSuite is a testify suite base that gives every test a fresh
// FakeRadio and a fast configuration.
//
// Usage:
//
//	type ManagerSuite struct {
//	    testutils.FakeRadioSuite
//	}
//
//	func (s *ManagerSuite) SetupTest() {
//	    s.FakeRadioSuite.SetupTest()
//	    s.Radio.WithPeripheral("BoonLED", "AA:BB:CC:DD:EE:01")
//	}
type FakeRadioSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger
	Radio  *FakeRadio
	Config *config.Config
}

// SetupSuite initializes the logger once for all tests in the suite.
func (s *FakeRadioSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Logger.Debug("Suite setup completed")
}

// SetupTest gives each test its own radio and configuration.
func (s *FakeRadioSuite) SetupTest() {
	s.Radio = NewFakeRadio(s.Logger)
	s.Config = FastConfig()
}

// TearDownTest drops the per-test radio.
func (s *FakeRadioSuite) TearDownTest() {
	s.Radio = nil
	s.Config = nil
}

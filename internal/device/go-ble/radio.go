package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/boonled/internal/device"
	"github.com/srg/boonled/internal/groutine"
)

// Radio implements device.Radio on top of go-ble.
type Radio struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// NewRadio creates a go-ble backed radio. The platform device is created on
// first use.
func NewRadio(logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{logger: logger}
}

func (r *Radio) device() (ble.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev != nil {
		return r.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		r.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	r.dev = dev
	return dev, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (r *Radio) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	dev, err := r.device()
	if err != nil {
		return err
	}

	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	return NormalizeError(dev.Scan(ctx, allowDup, bleHandler))
}

// Connect dials the peripheral and returns a link. The LinkConnected callback
// is delivered before Connect returns; a monitor goroutine reports remote
// disconnection later.
func (r *Radio) Connect(ctx context.Context, address string, callbacks device.Callbacks) (device.Link, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	dev, err := r.device()
	if err != nil {
		return nil, err
	}

	r.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	l := newLink(client, address, callbacks, r.logger)
	l.monitor()
	callbacks.OnConnectionStateChanged(device.StatusSuccess, device.LinkConnected)
	return l, nil
}

// goName builds a per-link goroutine name for profiling labels.
func goName(op, address string) string {
	return fmt.Sprintf("goble-%s-%s", op, address)
}

var _ device.Radio = (*Radio)(nil)

// spawn runs fn on a named goroutine; go-ble calls block, callbacks must not.
func spawn(op, address string, fn func()) {
	groutine.Go(context.Background(), goName(op, address), func(context.Context) { fn() })
}

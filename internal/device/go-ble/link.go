package goble

import (
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/boonled/internal/device"
)

// Link is one go-ble client connection. Blocking go-ble operations run on
// their own goroutines and report through device.Callbacks.
type Link struct {
	client    ble.Client
	address   string
	callbacks device.Callbacks
	logger    *logrus.Logger

	mu         sync.RWMutex
	services   map[string]map[string]*BLECharacteristic // service uuid -> char uuid -> handle
	subscribed []*BLECharacteristic

	closed atomic.Bool
	done   chan struct{}
}

func newLink(client ble.Client, address string, callbacks device.Callbacks, logger *logrus.Logger) *Link {
	return &Link{
		client:    client,
		address:   address,
		callbacks: callbacks,
		logger:    logger,
		services:  make(map[string]map[string]*BLECharacteristic),
		done:      make(chan struct{}),
	}
}

// monitor watches the go-ble Disconnected() channel when the client exposes one.
func (l *Link) monitor() {
	dc, ok := l.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		l.logger.Debug("Client does not expose Disconnected(); remote link loss is detected on next operation")
		return
	}
	spawn("monitor", l.address, func() {
		select {
		case <-dc.Disconnected():
			if !l.closed.Load() {
				l.logger.WithField("address", l.address).Warn("Peripheral reported disconnection")
				l.callbacks.OnConnectionStateChanged(device.StatusSuccess, device.LinkDisconnected)
			}
		case <-l.done:
		}
	})
}

func (l *Link) Address() string {
	return l.address
}

// DiscoverServices discovers the full profile and reports OnServicesDiscovered.
func (l *Link) DiscoverServices() error {
	if l.closed.Load() {
		return device.ErrNotConnected
	}
	spawn("discover", l.address, func() {
		profile, err := l.client.DiscoverProfile(true)
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"address": l.address,
				"error":   err,
			}).Warn("Failed to discover profile")
			l.callbacks.OnServicesDiscovered(device.StatusFailure)
			return
		}

		services := make(map[string]map[string]*BLECharacteristic, len(profile.Services))
		for _, svc := range profile.Services {
			chars := make(map[string]*BLECharacteristic, len(svc.Characteristics))
			for _, c := range svc.Characteristics {
				h := NewCharacteristic(c)
				chars[h.UUID()] = h
			}
			services[device.NormalizeUUID(svc.UUID.String())] = chars
		}

		l.mu.Lock()
		l.services = services
		l.mu.Unlock()

		l.logger.WithFields(logrus.Fields{
			"address":  l.address,
			"services": len(services),
		}).Debug("Profile discovered successfully")
		l.callbacks.OnServicesDiscovered(device.StatusSuccess)
	})
	return nil
}

// Characteristic resolves a handle by service and characteristic UUID.
// Both UUIDs are normalized for consistent lookup (lowercase, no dashes).
func (l *Link) Characteristic(service, uuid string) (device.Characteristic, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	chars, ok := l.services[device.NormalizeUUID(service)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	c, ok := chars[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return c, nil
}

func (l *Link) handle(c device.Characteristic) (*BLECharacteristic, bool) {
	h, ok := c.(*BLECharacteristic)
	return h, ok && h.BLEChar != nil
}

// WriteCharacteristic issues the go-ble write on its own goroutine. With
// WriteNoResponse the acknowledgment is reported as soon as the call returns.
func (l *Link) WriteCharacteristic(c device.Characteristic, data []byte, kind device.WriteKind) bool {
	h, ok := l.handle(c)
	if !ok || l.closed.Load() {
		return false
	}
	payload := append([]byte(nil), data...)

	spawn("write", l.address, func() {
		err := NormalizeError(l.client.WriteCharacteristic(h.BLEChar, payload, kind == device.WriteNoResponse))
		status := device.StatusSuccess
		if err != nil {
			status = device.StatusFailure
			l.logger.WithFields(logrus.Fields{
				"char_uuid": h.UUID(),
				"error":     err,
			}).Warn("Characteristic write failed")
		}
		l.callbacks.OnCharacteristicWrite(h.UUID(), status)
	})
	return true
}

func (l *Link) ReadCharacteristic(c device.Characteristic) bool {
	h, ok := l.handle(c)
	if !ok || l.closed.Load() {
		return false
	}
	spawn("read", l.address, func() {
		data, err := l.client.ReadCharacteristic(h.BLEChar)
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"char_uuid": h.UUID(),
				"error":     NormalizeError(err),
			}).Warn("Characteristic read failed")
			l.callbacks.OnCharacteristicRead(h.UUID(), nil, device.StatusFailure)
			return
		}
		l.callbacks.OnCharacteristicRead(h.UUID(), data, device.StatusSuccess)
	})
	return true
}

func (l *Link) SubscribeNotifications(c device.Characteristic) error {
	h, ok := l.handle(c)
	if !ok {
		return device.ErrUnsupported
	}
	if l.closed.Load() {
		return device.ErrNotConnected
	}
	if !h.CanNotify() {
		return device.ErrUnsupported
	}

	uuid := h.UUID()
	err := l.client.Subscribe(h.BLEChar, h.indicate(), func(data []byte) {
		l.callbacks.OnCharacteristicChanged(uuid, append([]byte(nil), data...))
	})
	if err != nil {
		return NormalizeError(err)
	}

	l.mu.Lock()
	l.subscribed = append(l.subscribed, h)
	l.mu.Unlock()
	return nil
}

func (l *Link) RequestMTU(mtu int) bool {
	if l.closed.Load() {
		return false
	}
	spawn("mtu", l.address, func() {
		txMTU, err := l.client.ExchangeMTU(mtu)
		if err != nil {
			l.callbacks.OnMTUChanged(0, device.StatusFailure)
			return
		}
		l.callbacks.OnMTUChanged(txMTU, device.StatusSuccess)
	})
	return true
}

// Disconnect cancels the connection. Safe to call more than once.
func (l *Link) Disconnect() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(l.done)

	l.mu.RLock()
	subs := append([]*BLECharacteristic(nil), l.subscribed...)
	l.mu.RUnlock()

	for _, h := range subs {
		if err := l.client.Unsubscribe(h.BLEChar, h.indicate()); err != nil {
			l.logger.WithFields(logrus.Fields{
				"char_uuid": h.UUID(),
				"error":     NormalizeError(err),
			}).Debug("Failed to unsubscribe during disconnect")
		}
	}

	return NormalizeError(l.client.CancelConnection())
}

// Close releases cached handles; the link cannot be reused.
func (l *Link) Close() error {
	err := l.Disconnect()

	l.mu.Lock()
	l.services = make(map[string]map[string]*BLECharacteristic)
	l.subscribed = nil
	l.mu.Unlock()

	if err != nil && device.IsConnectionState(err, device.NotConnected) {
		return nil
	}
	return err
}

var _ device.Link = (*Link)(nil)

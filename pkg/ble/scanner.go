package ble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/boonled/internal/device"
)

// scanFor scans until an advertisement with the given local name shows up or
// the timeout elapses. Returns ErrDeviceNotFound when nothing matched.
func scanFor(ctx context.Context, radio device.ScanningDevice, name string, timeout time.Duration, logger *logrus.Logger) (device.Advertisement, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan device.Advertisement, 1)
	handler := func(adv device.Advertisement) {
		if adv.LocalName() != name {
			return
		}
		select {
		case found <- adv:
			logger.WithFields(logrus.Fields{
				"device":  adv.LocalName(),
				"address": adv.Addr(),
				"rssi":    adv.RSSI(),
			}).Info("Found target device")
		default:
		}
		cancel()
	}

	logger.WithFields(logrus.Fields{
		"device_name": name,
		"timeout":     timeout,
	}).Debug("Scanning for device...")

	err := radio.Scan(scanCtx, false, handler)

	select {
	case adv := <-found:
		return adv, nil
	default:
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return nil, fmt.Errorf("%w: %q within %s", ErrDeviceNotFound, name, timeout)
}

// DiscoveredDevice is one peripheral seen during Discover.
type DiscoveredDevice struct {
	Name        string
	Address     string
	RSSI        int
	Connectable bool
	Services    []string
	LastSeen    time.Time
}

// DiscoverOptions configures Discover.
type DiscoverOptions struct {
	Duration     time.Duration
	NamePrefix   string   // keep only devices whose name starts with this
	ServiceUUIDs []string // keep only devices advertising one of these
}

// Discover lists every advertising peripheral seen within opts.Duration,
// strongest signal first. Later advertisements of a known address update it.
func Discover(ctx context.Context, radio device.ScanningDevice, opts DiscoverOptions, logger *logrus.Logger) ([]DiscoveredDevice, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Duration <= 0 {
		opts.Duration = 10 * time.Second
	}

	devices := hashmap.New[string, *DiscoveredDevice]()
	wanted := device.NormalizeUUIDs(opts.ServiceUUIDs)

	handler := func(adv device.Advertisement) {
		addr := adv.Addr()
		if existing, ok := devices.Get(addr); ok {
			updated := *existing
			if name := adv.LocalName(); name != "" {
				updated.Name = name
			}
			updated.RSSI = adv.RSSI()
			updated.LastSeen = time.Now()
			devices.Set(addr, &updated)
			return
		}
		if !includeAdvertisement(adv, opts.NamePrefix, wanted) {
			return
		}

		dev := &DiscoveredDevice{
			Name:        adv.LocalName(),
			Address:     addr,
			RSSI:        adv.RSSI(),
			Connectable: adv.Connectable(),
			Services:    device.NormalizeUUIDs(adv.Services()),
			LastSeen:    time.Now(),
		}
		if _, loaded := devices.GetOrInsert(addr, dev); !loaded {
			logger.WithFields(logrus.Fields{
				"device":  dev.Name,
				"address": dev.Address,
				"rssi":    dev.RSSI,
			}).Info("Discovered new device")
		}
	}

	scanCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	err := radio.Scan(scanCtx, true, handler)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	logger.WithField("device_count", devices.Len()).Info("BLE scan completed")

	out := make([]DiscoveredDevice, 0, devices.Len())
	devices.Range(func(_ string, d *DiscoveredDevice) bool {
		out = append(out, *d)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out, nil
}

// includeAdvertisement applies the name prefix and service filters.
func includeAdvertisement(adv device.Advertisement, prefix string, services []string) bool {
	if prefix != "" && !strings.HasPrefix(adv.LocalName(), prefix) {
		return false
	}
	if len(services) == 0 {
		return true
	}
	for _, advUUID := range device.NormalizeUUIDs(adv.Services()) {
		for _, required := range services {
			if advUUID == required {
				return true
			}
		}
	}
	return false
}

package main

import (
	"errors"
	"fmt"

	"github.com/srg/boonled/internal/device"
	"github.com/srg/boonled/pkg/ble"
)

// ErrNotReady means the rig was not connected and ready within --ready-timeout.
var ErrNotReady = errors.New("BoonLED rig not ready")

// FormatUserError turns known failures into a message with a hint.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var hint string
	switch {
	case errors.Is(err, ErrNotReady):
		hint = "check that the rig is powered and in range, or raise --ready-timeout"
	case errors.Is(err, device.ErrBluetoothOff):
		hint = "turn Bluetooth on and try again"
	case errors.Is(err, ble.ErrControllerNotRegistered):
		hint = "configure the controller first, or pass --type"
	case errors.Is(err, ble.ErrAckTimeout):
		hint = "the rig did not acknowledge the write; it reconnects on the next command"
	case errors.Is(err, ble.ErrWriteFailed), errors.Is(err, ble.ErrWriteRejected):
		hint = "the rig refused the write; check the payload format"
	case errors.Is(err, ble.ErrLinkLost):
		hint = "the link dropped while writing; try again"
	}

	var notFound *device.NotFoundError
	if hint == "" && errors.As(err, &notFound) {
		hint = "the rig firmware does not expose this channel"
	}

	if hint == "" {
		return err.Error()
	}
	return fmt.Sprintf("%s\nHint: %s", err, hint)
}

package goble

import (
	"fmt"

	"github.com/srg/boonled/internal/device"
)

// darwinPoweredOff is the exact message CoreBluetooth surfaces through go-ble
// when the adapter is off.
const darwinPoweredOff = "central manager has invalid state: have=4 want=5: is Bluetooth turned on?"

// NormalizeError maps known go-ble error strings to structured ConnectionError types.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if err.Error() == darwinPoweredOff {
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	}
	return device.NormalizeError(err)
}

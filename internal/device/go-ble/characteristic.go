package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/boonled/internal/device"
)

// BLECharacteristic is a resolved go-ble characteristic handle.
type BLECharacteristic struct {
	uuid    string
	BLEChar *ble.Characteristic
}

// NewCharacteristic wraps a discovered go-ble characteristic.
func NewCharacteristic(c *ble.Characteristic) *BLECharacteristic {
	return &BLECharacteristic{
		uuid:    device.NormalizeUUID(c.UUID.String()),
		BLEChar: c,
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

// CanNotify reports whether the characteristic supports notify or indicate.
func (c *BLECharacteristic) CanNotify() bool {
	return c.BLEChar.Property&ble.CharNotify != 0 || c.BLEChar.Property&ble.CharIndicate != 0
}

// indicate reports whether subscriptions must use indications.
func (c *BLECharacteristic) indicate() bool {
	return c.BLEChar.Property&ble.CharNotify == 0 && c.BLEChar.Property&ble.CharIndicate != 0
}

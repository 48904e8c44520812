package ble

import (
	"fmt"
	"strings"

	"github.com/srg/boonled/internal/device"
)

// ServiceUUID is the single GATT service that carries every BoonLED channel.
const ServiceUUID = "b00d0c55-1111-2222-3333-0000b00d0c50"

// Channel is a logical write/read target on the peripheral. Each maps to one
// characteristic of ServiceUUID.
type Channel int

const (
	LedSet Channel = iota
	BrightSet
	AllOff
	SceneSelect
	SceneSave
	CtrlTypeSet
	ReadConfig
)

var channelInfo = [...]struct {
	name string
	uuid string
}{
	LedSet:      {"LedSet", "b00d0c55-1111-2222-3333-0000b00d0c52"},
	BrightSet:   {"BrightSet", "b00d0c55-1111-2222-3333-0000b00d0c53"},
	AllOff:      {"AllOff", "b00d0c55-1111-2222-3333-0000b00d0c54"},
	SceneSelect: {"SceneSelect", "b00d0c55-1111-2222-3333-0000b00d0c55"},
	SceneSave:   {"SceneSave", "b00d0c55-1111-2222-3333-0000b00d0c56"},
	CtrlTypeSet: {"CtrlTypeSet", "b00d0c55-1111-2222-3333-0000b00d0c57"},
	ReadConfig:  {"ReadConfig", "b00d0c55-1111-2222-3333-0000b00d0c51"},
}

// RequiredChannels must all resolve before a link counts as ready.
var RequiredChannels = []Channel{LedSet, BrightSet}

// Channels lists every logical channel in declaration order.
func Channels() []Channel {
	out := make([]Channel, len(channelInfo))
	for i := range channelInfo {
		out[i] = Channel(i)
	}
	return out
}

func (c Channel) valid() bool {
	return c >= 0 && int(c) < len(channelInfo)
}

func (c Channel) String() string {
	if !c.valid() {
		return fmt.Sprintf("Channel(%d)", int(c))
	}
	return channelInfo[c].name
}

// UUID returns the characteristic UUID of the channel, or "" for unknown values.
func (c Channel) UUID() string {
	if !c.valid() {
		return ""
	}
	return channelInfo[c].uuid
}

// ParseChannel resolves a channel by name (case-insensitive) or characteristic UUID.
func ParseChannel(s string) (Channel, error) {
	s = strings.TrimSpace(s)
	for i, info := range channelInfo {
		if strings.EqualFold(info.name, s) {
			return Channel(i), nil
		}
	}
	if ch, ok := channelForUUID(s); ok {
		return ch, nil
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// channelForUUID maps a characteristic UUID in any accepted notation back to its channel.
func channelForUUID(uuid string) (Channel, bool) {
	norm := device.NormalizeUUID(uuid)
	if norm == "" {
		return 0, false
	}
	for i, info := range channelInfo {
		if device.NormalizeUUID(info.uuid) == norm {
			return Channel(i), true
		}
	}
	return 0, false
}

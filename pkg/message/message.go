// Package message builds the JSON payloads understood by the BoonLED firmware.
//
// Every builder returns the exact bytes to write to the matching channel of
// pkg/ble. Controller ids are 1..4 and are always encoded as JSON object keys.
package message

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaxControllers is the number of controller slots on the rig.
const MaxControllers = 4

// MaxScenes is the number of scene slots on the rig.
const MaxScenes = 4

// MaxSceneNameLength is the longest scene name the firmware stores.
const MaxSceneNameLength = 10

// ControllerType selects how a controller drives its four outputs.
type ControllerType string

const (
	// RGBW drives one four-channel strip.
	RGBW ControllerType = "RGBW"
	// RGBPlusOne drives an RGB strip plus a separate single-color strip on W.
	RGBPlusOne ControllerType = "RGB+1"
	// FourChannel drives four independent single-color strips.
	FourChannel ControllerType = "4Chan"
)

// ControllerTypes lists the supported types in firmware order.
func ControllerTypes() []ControllerType {
	return []ControllerType{RGBW, RGBPlusOne, FourChannel}
}

// ParseControllerType accepts the firmware spelling of a type, case-insensitively.
// "rgb1" and "4" are accepted as shell-friendly aliases.
func ParseControllerType(s string) (ControllerType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rgbw":
		return RGBW, nil
	case "rgb+1", "rgb1":
		return RGBPlusOne, nil
	case "4chan", "4":
		return FourChannel, nil
	}
	return "", fmt.Errorf("unknown controller type %q (want RGBW, RGB+1 or 4Chan)", s)
}

// ControllerID validates id and returns its wire form.
func ControllerID(id int) (string, error) {
	if id < 1 || id > MaxControllers {
		return "", fmt.Errorf("controller id %d out of range 1..%d", id, MaxControllers)
	}
	return strconv.Itoa(id), nil
}

// DefaultControllerName is the name a controller gets until the user renames it.
func DefaultControllerName(id int) string {
	return fmt.Sprintf("Controller %d", id)
}

// DefaultChannelNames returns the user-facing names of the outputs of t.
func DefaultChannelNames(t ControllerType) map[string]string {
	switch t {
	case RGBPlusOne:
		return map[string]string{"RGB": "User Channel 1", "W": "User Channel 2"}
	case FourChannel:
		return map[string]string{
			"R": "User Channel 1",
			"G": "User Channel 2",
			"B": "User Channel 3",
			"W": "User Channel 4",
		}
	default:
		return map[string]string{"RGBW": "User Channel 1"}
	}
}

// AllOff turns every output of every controller off.
func AllOff() []byte {
	return mustMarshal(map[string]string{"1": "off"})
}

type controllerConfig struct {
	Type      ControllerType    `json:"Type"`
	Name      string            `json:"Name"`
	ChanNames map[string]string `json:"ChanNames"`
}

// SetType is the controller type configuration written to the CtrlTypeSet
// channel. An empty name or nil chanNames fall back to the defaults.
func SetType(id int, t ControllerType, name string, chanNames map[string]string) ([]byte, error) {
	key, err := ControllerID(id)
	if err != nil {
		return nil, err
	}
	if _, err := ParseControllerType(string(t)); err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultControllerName(id)
	}
	if chanNames == nil {
		chanNames = DefaultChannelNames(t)
	}
	return json.Marshal(map[string]controllerConfig{
		key: {Type: t, Name: name, ChanNames: chanNames},
	})
}

type rgbw struct {
	R uint8 `json:"R"`
	G uint8 `json:"G"`
	B uint8 `json:"B"`
	W uint8 `json:"W"`
}

type rgb struct {
	R uint8 `json:"R"`
	G uint8 `json:"G"`
	B uint8 `json:"B"`
}

// Color sets the color of controller id for the LedSet channel. The W
// component is only sent to RGBW controllers; the other types switch W
// separately with Toggle.
func Color(id int, t ControllerType, r, g, b, w uint8) ([]byte, error) {
	key, err := ControllerID(id)
	if err != nil {
		return nil, err
	}
	if t == RGBW {
		return json.Marshal(map[string]rgbw{key: {R: r, G: g, B: b, W: w}})
	}
	return json.Marshal(map[string]rgb{key: {R: r, G: g, B: b}})
}

// ChannelLevel sets a single output of controller id. It is used for the
// LedSet and BrightSet channels alike.
func ChannelLevel(id int, channel string, value uint8) ([]byte, error) {
	key, err := ControllerID(id)
	if err != nil {
		return nil, err
	}
	switch channel {
	case "R", "G", "B", "W":
	default:
		return nil, fmt.Errorf("unknown output %q (want R, G, B or W)", channel)
	}
	return json.Marshal(map[string]map[string]uint8{key: {channel: value}})
}

// Toggle switches a single output fully on or off.
func Toggle(id int, channel string, on bool) ([]byte, error) {
	var value uint8
	if on {
		value = 255
	}
	return ChannelLevel(id, channel, value)
}

// SceneSelect recalls scene n, 1..MaxScenes.
func SceneSelect(n int) ([]byte, error) {
	if err := checkScene(n); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"LEDScene": strconv.Itoa(n)})
}

// SceneSave stores the current output state as scene n under name.
func SceneSave(n int, name string) ([]byte, error) {
	if err := checkScene(n); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("scene name is empty")
	}
	if l := len([]rune(name)); l > MaxSceneNameLength {
		return nil, fmt.Errorf("scene name %q is %d characters, limit is %d", name, l, MaxSceneNameLength)
	}
	return json.Marshal(map[string]string{strconv.Itoa(n): name})
}

func checkScene(n int) error {
	if n < 1 || n > MaxScenes {
		return fmt.Errorf("scene %d out of range 1..%d", n, MaxScenes)
	}
	return nil
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

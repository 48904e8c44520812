package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

// ErrUnsupported is returned for operations a characteristic does not allow.
var ErrUnsupported = errors.New("unsupported")

// NormalizeError maps known platform error strings to structured ConnectionError types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is bluetooth turned on"),
		containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Status is the GATT status code reported with every callback.
type Status int

const (
	StatusSuccess Status = 0
	StatusFailure Status = 0x101
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return fmt.Sprintf("status=%d", int(s))
}

// LinkState is the connection state reported by OnConnectionStateChanged.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
	LinkDisconnecting
)

func (s LinkState) String() string {
	switch s {
	case LinkDisconnected:
		return "disconnected"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("link_state(%d)", int(s))
	}
}

// WriteKind selects between acknowledged and unacknowledged characteristic writes.
type WriteKind int

const (
	WriteDefault WriteKind = iota
	WriteNoResponse
)

func (k WriteKind) String() string {
	if k == WriteNoResponse {
		return "no-response"
	}
	return "default"
}

// Advertisement is a single advertising report seen while scanning.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Services() []string
	TxPowerLevel() int
	Connectable() bool

	RSSI() int
	Addr() string
}

// ScanningDevice represents a BLE device capable of scanning for advertisements
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Radio is the platform BLE capability consumed by the connection manager.
//
// Connect returns as soon as a link handle exists. Connection progress, service
// discovery results, write acknowledgments and inbound data are reported later
// through the supplied Callbacks, from the radio's own goroutines.
type Radio interface {
	ScanningDevice
	Connect(ctx context.Context, address string, callbacks Callbacks) (Link, error)
}

// Link is one established (or establishing) connection to a peripheral.
type Link interface {
	Address() string

	// DiscoverServices starts service discovery; completion is reported
	// through Callbacks.OnServicesDiscovered.
	DiscoverServices() error

	// Characteristic resolves a handle after discovery completed. Returns a
	// NotFoundError when the service or characteristic is absent.
	Characteristic(service, uuid string) (Characteristic, error)

	// WriteCharacteristic issues a write and reports whether the stack accepted
	// the call. The acknowledgment arrives via Callbacks.OnCharacteristicWrite.
	WriteCharacteristic(c Characteristic, data []byte, kind WriteKind) bool

	// ReadCharacteristic issues a read; the value arrives via
	// Callbacks.OnCharacteristicRead.
	ReadCharacteristic(c Characteristic) bool

	SubscribeNotifications(c Characteristic) error
	RequestMTU(mtu int) bool

	Disconnect() error
	Close() error
}

// Characteristic is a resolved GATT characteristic handle.
type Characteristic interface {
	UUID() string
	CanNotify() bool
}

// Callbacks is the surface a Radio reports back through. Implementations must
// never block: they publish or signal and return.
type Callbacks interface {
	OnConnectionStateChanged(status Status, state LinkState)
	OnServicesDiscovered(status Status)
	OnCharacteristicWrite(uuid string, status Status)
	OnCharacteristicChanged(uuid string, data []byte)
	OnCharacteristicRead(uuid string, data []byte, status Status)
	OnMTUChanged(mtu int, status Status)
}

package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		expected string
	}{
		{
			name:     "resource only",
			err:      &NotFoundError{Resource: "service"},
			expected: "service not found",
		},
		{
			name:     "single UUID",
			err:      &NotFoundError{Resource: "service", UUIDs: []string{"b00d"}},
			expected: `service "b00d" not found`,
		},
		{
			name:     "characteristic in service",
			err:      &NotFoundError{Resource: "characteristic", UUIDs: []string{"b00d", "0c52"}},
			expected: `characteristic "0c52" not found in service "b00d"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestConnectionError_Is(t *testing.T) {
	err := fmt.Errorf("dial: %w", &ConnectionError{State: NotConnected, Msg: "link lost"})

	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.False(t, errors.Is(err, ErrAlreadyConnected))
	assert.True(t, IsConnectionState(err, NotConnected))
	assert.Equal(t, "not_connected: link lost", (&ConnectionError{State: NotConnected, Msg: "link lost"}).Error())
	assert.Equal(t, "bluetooth_off", ErrBluetoothOff.Error())
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		input  error
		target error
	}{
		{"bluetooth off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), ErrBluetoothOff},
		{"not connected", errors.New("Device not connected"), ErrNotConnected},
		{"remote disconnect", errors.New("peripheral disconnected"), ErrNotConnected},
		{"already connected", errors.New("device already connected"), ErrAlreadyConnected},
		{"not initialized", errors.New("connection is not initialized"), ErrNotInitialized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.input)
			assert.ErrorIs(t, got, tt.target)
			assert.Contains(t, got.Error(), tt.input.Error())
		})
	}

	assert.Nil(t, NormalizeError(nil))
	plain := errors.New("something else")
	assert.Same(t, plain, NormalizeError(plain))
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "status=257", StatusFailure.String())
	assert.Equal(t, "connected", LinkConnected.String())
	assert.Equal(t, "disconnected", LinkDisconnected.String())
	assert.Equal(t, "no-response", WriteNoResponse.String())
	assert.Equal(t, "default", WriteDefault.String())
}

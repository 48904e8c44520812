package ble

import "errors"

var (
	// ErrStopped is returned by every operation attempted while the manager
	// is not running. It is distinct from link failures, which are retried.
	ErrStopped = errors.New("ble manager is stopped")

	// ErrControllerNotRegistered means no configuration payload was ever
	// registered for a controller within the registration timeout.
	ErrControllerNotRegistered = errors.New("controller configuration not registered")

	// ErrDeviceNotFound is reported when a scan ends without a name match.
	ErrDeviceNotFound = errors.New("device not found")

	ErrWriteRejected = errors.New("write rejected by transport")
	ErrWriteFailed   = errors.New("write acknowledged with failure")
	ErrAckTimeout    = errors.New("write acknowledgment timeout")
	ErrLinkLost      = errors.New("link lost before acknowledgment")
)

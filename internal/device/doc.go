// Package device defines the radio transport capability the connection manager
// consumes: scanning, link establishment, GATT characteristic access and the
// asynchronous callback surface a platform BLE stack reports back through.
//
// The package holds interfaces and error types only. The go-ble backed
// implementation lives in the goble subpackage; tests use the fake radio from
// internal/testutils.
package device

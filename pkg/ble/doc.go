// Package ble is the BoonLED connection manager.
//
// A Manager owns one link to the peripheral advertising as the configured
// device name. It keeps that link alive across drops with exponential backoff,
// serializes every characteristic write so the peripheral never sees two
// writes in flight, and replays per-controller type configuration after each
// reconnect.
//
// The peripheral echoes no correlation id in write acknowledgments. The next
// acknowledgment is matched to the single in-flight request, which is only
// sound because writes are strictly serialized.
package ble

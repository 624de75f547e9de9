// Package session implements the connection state machine of a Nomiku
// client.
//
// A Machine authenticates against the directory, resolves the default
// device, loads the device list and connects the transport. It subscribes
// every listening device to "<namespace>/<hwid>/get/+", routes inbound
// messages to the device records and emits the resulting snapshots.
//
// Local changes go through a Command:
//
//	cmd, err := m.Set("1")
//	snap, err := cmd.SetSetpoint(ctx, 55)
//
// The change is shown at once and marked provisional. If the device does
// not confirm it within the provisional timeout, the attribute reverts to
// the last value the device reported and a state event is emitted.
//
// Reconnects use exponential backoff: the period doubles after every
// failed attempt up to a maximum and returns to the minimum after a
// successful connection.
package session

package model

import "errors"

// Error taxonomy shared across the applet core. Precondition failures
// (not found, not paired, capability unavailable) are detected locally
// and never reach the bus; round-trip failures (timeout, rejected) are
// recoverable and the user may retry.
var (
	// ErrDeviceNotFound means no device with the given ID is known.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrNotPaired means the device exists but is not paired.
	ErrNotPaired = errors.New("device is not paired")
	// ErrCapabilityUnavailable means the device does not expose the
	// required plugin, or the plugin is in a state that cannot accept
	// commands (e.g. no active media player).
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	// ErrCommandTimeout means the daemon did not answer within the
	// configured deadline.
	ErrCommandTimeout = errors.New("command timed out")
	// ErrCommandRejected means the daemon answered with an error.
	ErrCommandRejected = errors.New("command rejected by daemon")
	// ErrTransportUnavailable means the daemon itself is unreachable.
	ErrTransportUnavailable = errors.New("daemon unreachable")
)

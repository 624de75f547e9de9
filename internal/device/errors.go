package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrInvalidPayload) {
//	    // message ignored, state unchanged
//	}
var (
	// ErrDeviceNotFound is returned when a device ID is not in the cache.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when device metadata is incomplete.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidPayload is returned when a wire payload cannot be parsed
	// for its topic. The record is left unchanged.
	ErrInvalidPayload = errors.New("device: invalid payload")

	// ErrInvalidValue is returned when a caller-supplied value has the
	// wrong type for its attribute.
	ErrInvalidValue = errors.New("device: invalid value")
)

package session

import "errors"

// Validation errors. They are returned to the caller and never retried.
var (
	// ErrUnknownDevice is returned when an ID does not name a known device.
	ErrUnknownDevice = errors.New("session: unknown device")

	// ErrNoDefaultDevice is returned when no ID was given and no default
	// device is known.
	ErrNoDefaultDevice = errors.New("session: no device specified and no default device")

	// ErrMissingCredentials is returned when neither email/password nor
	// userID/apiToken are available.
	ErrMissingCredentials = errors.New("session: missing credentials")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")
)

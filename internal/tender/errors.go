package tender

import "errors"

// Errors returned by the directory client. Callers separate remote refusals
// (ErrRemote) from failures to reach the service (ErrRequestFailed), which
// are worth retrying.
var (
	// ErrMissingCredentials is returned before any request when the
	// caller supplied no usable credentials.
	ErrMissingCredentials = errors.New("tender: missing credentials")

	// ErrRemote is returned when the service answered with an error body
	// or a 4xx status.
	ErrRemote = errors.New("tender: remote error")

	// ErrRequestFailed is returned when the service could not be reached
	// or answered with a 5xx status.
	ErrRequestFailed = errors.New("tender: request failed")

	// ErrInvalidResponse is returned when a success body cannot be decoded.
	ErrInvalidResponse = errors.New("tender: invalid response")

	// ErrNoDefaultDevice is returned when the account has no default device.
	ErrNoDefaultDevice = errors.New("tender: no default device")
)

// IsRetryable reports whether err is a transient failure reaching the service.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRequestFailed)
}

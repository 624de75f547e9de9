package mqtt

import "errors"

// Errors for MQTT transport operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when subscribing without an open connection.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is passed to the failure callback of Connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrSubscribeFailed is returned when the broker refuses or does not
	// acknowledge a subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)

package mqtt

import "errors"

// Sentinel errors for session setup. Use errors.Is() to check for these
// errors in calling code; the underlying cause is wrapped alongside.
var (
	// ErrInvalidRequest is returned by [Start] when the request cannot
	// describe a broker connection.
	ErrInvalidRequest = errors.New("mqtt: invalid connection request")

	// ErrClientCreate is reported when the MQTT client cannot be built
	// for the request (for example an unsupported URL scheme).
	ErrClientCreate = errors.New("mqtt: client creation failed")

	// ErrConnectionFailed is reported when the broker connection attempt
	// fails or is refused.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrSubscribeFailed is reported when the subscription is refused.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsupportedScheme is wrapped by ErrClientCreate when the broker
	// URL scheme has no transport.
	ErrUnsupportedScheme = errors.New("mqtt: unsupported URL scheme")
)

package core

import "errors"

var (
	// ErrUnavailable is returned by a Broker when the requested data is missing
	ErrUnavailable = errors.New("data unavailable")
	// ErrInvalidSignal marks a malformed signal
	ErrInvalidSignal = errors.New("invalid signal")
)

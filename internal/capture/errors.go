package capture

import "errors"

var (
	// ErrConnection means the compositor connection is unusable. It stops
	// the engine.
	ErrConnection = errors.New("compositor connection failed")

	// ErrProtocolViolation marks a malformed or out-of-order event. Only the
	// affected window or frame is dropped.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrUnsupportedFormat is returned for pixel formats other than
	// argb8888 and xrgb8888.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")

	// ErrAllocation means the shared buffer pool could not be created or
	// grown. Only the capture that needed the space fails.
	ErrAllocation = errors.New("buffer allocation failed")
)

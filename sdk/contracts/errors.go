package contracts

import "errors"

// Error kinds shared by the bridge components. None of them ever crosses the
// polling surface; they are converted into sentinel values there.
var (
	ErrNotFound            = errors.New("endpoint not found")
	ErrNotReady            = errors.New("bridge not ready")
	ErrQueueFull           = errors.New("inbound queue full")
	ErrMalformedFrame      = errors.New("malformed MIDI frame")
	ErrClosed              = errors.New("bridge closed")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

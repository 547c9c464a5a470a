//go:build !linux || !cgo
// +build !linux !cgo

// Package rtmidi adapts the ALSA sequencer, through RtMidi, to contracts.Platform.
package rtmidi

import (
	"fmt"

	"github.com/leandrodaf/midijack/sdk/contracts"
)

// New reports that RtMidi is unavailable on this build.
func New(opts *contracts.BridgeOptions) (contracts.Platform, error) {
	opts.Logger.Warn("RtMidi requested without Linux cgo support")
	return nil, fmt.Errorf("%w: rtmidi requires linux and cgo", contracts.ErrUnsupportedPlatform)
}

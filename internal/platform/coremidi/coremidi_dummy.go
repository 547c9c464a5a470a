//go:build !darwin || !cgo
// +build !darwin !cgo

// Package coremidi adapts macOS CoreMIDI to contracts.Platform.
package coremidi

import (
	"fmt"

	"github.com/leandrodaf/midijack/sdk/contracts"
)

// New reports that CoreMIDI is unavailable on this system.
func New(options *contracts.BridgeOptions) (contracts.Platform, error) {
	options.Logger.Warn("CoreMIDI requested on a system without it")
	return nil, fmt.Errorf("%w: CoreMIDI requires macOS with cgo", contracts.ErrUnsupportedPlatform)
}

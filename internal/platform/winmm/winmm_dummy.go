//go:build !windows
// +build !windows

// Package winmm adapts the Windows multimedia MIDI API to contracts.Platform.
package winmm

import (
	"fmt"

	"github.com/leandrodaf/midijack/sdk/contracts"
)

// New reports that winmm is unavailable on non-Windows systems.
func New(options *contracts.BridgeOptions) (contracts.Platform, error) {
	options.Logger.Warn("Windows MIDI requested on a non-Windows system")
	return nil, fmt.Errorf("%w: winmm requires Windows", contracts.ErrUnsupportedPlatform)
}

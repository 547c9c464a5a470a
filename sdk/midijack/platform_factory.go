package midijack

import (
	"fmt"
	"runtime"

	"github.com/leandrodaf/midijack/internal/platform/coremidi"
	"github.com/leandrodaf/midijack/internal/platform/rtmidi"
	"github.com/leandrodaf/midijack/internal/platform/winmm"
	"github.com/leandrodaf/midijack/sdk/contracts"
)

// platformInitializers maps OS names to the native MIDI subsystem adapters.
var platformInitializers = map[string]func(*contracts.BridgeOptions) (contracts.Platform, error){
	"darwin":  coremidi.New, // CoreMIDI.
	"windows": winmm.New,    // Windows multimedia MIDI API.
	"linux":   rtmidi.New,   // ALSA through RtMidi.
}

// NewPlatform opens the native MIDI subsystem of the current operating system.
// It returns ErrUnsupportedPlatform when no adapter exists for it.
func NewPlatform(opts *contracts.BridgeOptions) (contracts.Platform, error) {
	if initializer, exists := platformInitializers[runtime.GOOS]; exists {
		return initializer(opts)
	}
	return nil, fmt.Errorf("%w: %s", contracts.ErrUnsupportedPlatform, runtime.GOOS)
}

// Command libmidijack builds the bridge as a C shared library:
//
//	go build -buildmode=c-shared -o libmidijack.so ./cmd/libmidijack
//
// The exported functions never fail. Before MidiJackStart and after
// MidiJackShutdown they return 0 or "(not ready)".
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/leandrodaf/midijack/internal/config"
	"github.com/leandrodaf/midijack/internal/logger"
	"github.com/leandrodaf/midijack/sdk/contracts"
	"github.com/leandrodaf/midijack/sdk/midijack"
)

// host keeps the one bridge the library serves and the name strings handed
// to C callers. A returned name stays valid until the next name call.
type host struct {
	mu     sync.Mutex
	bridge *midijack.Bridge
	names  [2]*C.char
	log    contracts.Logger
	extra  []contracts.Option
}

var lib = &host{log: logger.NewZapLogger()}

func (h *host) current() *midijack.Bridge {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bridge
}

func (h *host) recover(op string) {
	if r := recover(); r != nil {
		h.log.Error("Recovered from panic in exported call",
			h.log.Field().String("op", op),
			h.log.Field().String("panic", fmt.Sprint(r)))
	}
}

func (h *host) start() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bridge != nil {
		return 1
	}

	settings, err := config.Load(os.Getenv("MIDIJACK_CONFIG"))
	if err != nil {
		h.log.Warn("Using default settings", h.log.Field().Error("error", err))
		settings = &config.Settings{}
	}
	opts := append(settings.Options(), contracts.WithLogger(h.log))
	b, err := midijack.New(append(opts, h.extra...)...)
	if err != nil {
		h.log.Error("Failed to create MIDI bridge", h.log.Field().Error("error", err))
		return 0
	}
	if err := b.Start(context.Background()); err != nil {
		h.log.Warn("MIDI bridge started with errors", h.log.Field().Error("error", err))
	}
	h.bridge = b
	return 1
}

func (h *host) shutdown() {
	h.mu.Lock()
	b := h.bridge
	h.bridge = nil
	for i, s := range h.names {
		if s != nil {
			C.free(unsafe.Pointer(s))
			h.names[i] = nil
		}
	}
	h.mu.Unlock()

	if b != nil {
		if err := b.Close(); err != nil {
			h.log.Error("Failed to close MIDI bridge", h.log.Field().Error("error", err))
		}
	}
}

// name converts s into a C string stored in slot, freeing the previous one.
func (h *host) name(slot int, s string) *C.char {
	cs := C.CString(s)
	h.mu.Lock()
	defer h.mu.Unlock()
	if old := h.names[slot]; old != nil {
		C.free(unsafe.Pointer(old))
	}
	h.names[slot] = cs
	return cs
}

const (
	sourceNameSlot = iota
	destinationNameSlot
)

//export MidiJackStart
func MidiJackStart() int32 {
	defer lib.recover("start")
	return lib.start()
}

//export MidiJackShutdown
func MidiJackShutdown() {
	defer lib.recover("shutdown")
	lib.shutdown()
}

//export MidiJackCountSources
func MidiJackCountSources() int32 {
	defer lib.recover("count sources")
	return lib.current().CountSources()
}

//export MidiJackCountDestinations
func MidiJackCountDestinations() int32 {
	defer lib.recover("count destinations")
	return lib.current().CountDestinations()
}

//export MidiJackGetSourceIdAtIndex
func MidiJackGetSourceIdAtIndex(index int32) int32 {
	defer lib.recover("source id")
	return lib.current().SourceIDAt(index)
}

//export MidiJackGetDestinationIdAtIndex
func MidiJackGetDestinationIdAtIndex(index int32) int32 {
	defer lib.recover("destination id")
	return lib.current().DestinationIDAt(index)
}

//export MidiJackGetSourceName
func MidiJackGetSourceName(id int32) *C.char {
	name := midijack.NotReadyName
	func() {
		defer lib.recover("source name")
		name = lib.current().SourceName(id)
	}()
	return lib.name(sourceNameSlot, name)
}

//export MidiJackGetDestinationName
func MidiJackGetDestinationName(id int32) *C.char {
	name := midijack.NotReadyName
	func() {
		defer lib.recover("destination name")
		name = lib.current().DestinationName(id)
	}()
	return lib.name(destinationNameSlot, name)
}

//export MidiJackDequeueIncomingData
func MidiJackDequeueIncomingData() int64 {
	defer lib.recover("dequeue")
	return lib.current().DequeueIncoming()
}

//export MidiJackSendMessage
func MidiJackSendMessage(msg int64) {
	defer lib.recover("send")
	lib.current().SendMessage(msg)
}

//export MidiJackDroppedCount
func MidiJackDroppedCount() uint64 {
	defer lib.recover("dropped count")
	return lib.current().Dropped()
}

func main() {}

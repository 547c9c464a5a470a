// Package framer reassembles the raw byte stream of one receive port into
// discrete MIDI messages and classifies them.
//
// Two shapes are accepted: short messages (a status byte >= 0x80 followed by
// its data bytes, at most two, with running status) and the vendor SysEx
// message F0 00 20 76 03 <up to 2 payload bytes> F7, delivered with status F0.
// Everything else is discarded; a partially received message is never emitted.
package framer

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/leandrodaf/midijack/sdk/contracts"
	"github.com/smallnest/ringbuffer"
	"gitlab.com/gomidi/midi/v2"
)

// Status bytes the framer treats specially.
const (
	StatusNoteOff    = 0x80
	StatusSysEx      = 0xF0
	StatusEndSysEx   = 0xF7
	StatusTimingTick = 0xF8
)

// VendorHeader prefixes the only SysEx messages forwarded to the host.
var VendorHeader = []byte{StatusSysEx, 0x00, 0x20, 0x76, 0x03}

const maxVendorPayload = 2

// Sink receives classified events.
type Sink func(contracts.Message) error

// Framer is bound to one output endpoint. Write may be called from any thread;
// calls are serialized so the byte stream of a port stays in order.
type Framer struct {
	mu     sync.Mutex
	source contracts.EndpointID
	sink   Sink
	logger contracts.Logger

	running byte // running status, 0 when none
	status  byte // status of the message being assembled
	data    [2]byte
	have    int
	need    int

	inSysEx  bool
	overflow bool
	sysex    *ringbuffer.RingBuffer
}

// New creates a framer emitting events tagged with source.
func New(source contracts.EndpointID, sink Sink, logger contracts.Logger) *Framer {
	return &Framer{
		source: source,
		sink:   sink,
		logger: logger,
		sysex:  ringbuffer.New(len(VendorHeader) + maxVendorPayload).SetBlocking(false),
	}
}

// Write feeds raw bytes. It is usable directly as a contracts.FrameSink.
func (f *Framer) Write(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range p {
		f.feed(b)
	}
}

// Reset forgets any partially assembled message and the running status.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running, f.status, f.have, f.need = 0, 0, 0, 0
	f.inSysEx, f.overflow = false, false
	f.sysex.Reset()
}

func (f *Framer) feed(b byte) {
	switch {
	case b >= StatusTimingTick:
		// Realtime bytes may appear anywhere, even inside another message.
		f.emit(b, nil)
	case b == StatusSysEx:
		f.abandon()
		f.running = 0
		f.inSysEx, f.overflow = true, false
		f.sysex.Reset()
		_ = f.sysex.WriteByte(b)
	case b == StatusEndSysEx:
		if f.inSysEx {
			f.finishSysEx()
		} else {
			f.discard(b)
		}
	case b >= StatusNoteOff:
		f.abandon()
		f.startMessage(b)
	case f.inSysEx:
		if err := f.sysex.WriteByte(b); err != nil {
			f.overflow = true
		}
	case f.status != 0:
		f.data[f.have] = b
		f.have++
		if f.have == f.need {
			f.completeMessage()
		}
	case f.running != 0:
		f.startMessage(f.running)
		f.feed(b)
	default:
		f.discard(b)
	}
}

func (f *Framer) startMessage(status byte) {
	f.status, f.have, f.need = status, 0, DataLength(status)
	f.data = [2]byte{}
	if status < StatusSysEx {
		f.running = status
	} else {
		f.running = 0
	}
	if f.need == 0 {
		f.completeMessage()
	}
}

func (f *Framer) completeMessage() {
	f.emit(f.status, f.data[:f.have])
	f.status, f.have, f.need = 0, 0, 0
}

// abandon drops whatever was being assembled when a new status byte interrupts it.
func (f *Framer) abandon() {
	if f.inSysEx {
		f.logDiscard("unterminated SysEx")
		f.inSysEx = false
		f.sysex.Reset()
	}
	if f.status != 0 && f.have < f.need {
		f.logDiscard("incomplete short message")
		f.status, f.have, f.need = 0, 0, 0
	}
}

func (f *Framer) finishSysEx() {
	f.inSysEx = false
	buf := make([]byte, f.sysex.Length())
	n, _ := f.sysex.Read(buf)
	buf = buf[:n]
	f.sysex.Reset()

	switch {
	case f.overflow:
		f.logDiscard("SysEx payload too long")
	case len(buf) < len(VendorHeader) || !bytes.Equal(buf[:len(VendorHeader)], VendorHeader):
		f.logDiscard("foreign SysEx")
	default:
		f.emit(StatusSysEx, buf[len(VendorHeader):])
	}
}

func (f *Framer) emit(status byte, data []byte) {
	e := contracts.Message{Source: f.source, Status: status}
	copy(e.Data[:], data)

	if f.logger != nil {
		f.logger.Debug("MIDI message framed",
			f.logger.Field().Int32("endpointID", int32(f.source)),
			f.logger.Field().String("message", describe(status, data)))
	}
	if err := f.sink(e); err != nil && f.logger != nil {
		f.logger.Debug("MIDI message not queued",
			f.logger.Field().Int32("endpointID", int32(f.source)),
			f.logger.Field().Error("error", err))
	}
}

func (f *Framer) discard(b byte) {
	if f.logger != nil {
		f.logger.Debug(contracts.ErrMalformedFrame.Error(),
			f.logger.Field().Int32("endpointID", int32(f.source)),
			f.logger.Field().Uint8("byte", b))
	}
}

func (f *Framer) logDiscard(reason string) {
	if f.logger != nil {
		f.logger.Debug(contracts.ErrMalformedFrame.Error(),
			f.logger.Field().Int32("endpointID", int32(f.source)),
			f.logger.Field().String("reason", reason))
	}
}

func describe(status byte, data []byte) string {
	raw := append([]byte{status}, data...)
	if status < StatusSysEx {
		return midi.Message(raw).String()
	}
	return fmt.Sprintf("% X", raw)
}

// DataLength returns how many data bytes follow status in a short message.
func DataLength(status byte) int {
	switch status & 0xF0 {
	case 0x80, 0x90, 0xA0, 0xB0, 0xE0:
		return 2
	case 0xC0, 0xD0:
		return 1
	}
	switch status {
	case 0xF1, 0xF3:
		return 1
	case 0xF2:
		return 2
	}
	return 0
}

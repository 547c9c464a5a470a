//go:build windows
// +build windows

package winmm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/leandrodaf/midijack/internal/framer"
	"github.com/leandrodaf/midijack/internal/platform"
	"github.com/leandrodaf/midijack/sdk/contracts"
	"golang.org/x/sys/windows"
)

// Type definitions for MIDI handles
type (
	HMIDIIN  windows.Handle
	HMIDIOUT windows.Handle
)

// Constants for callback flags
const (
	CALLBACK_NULL     = 0x00000000 // No callback
	CALLBACK_FUNCTION = 0x00030000 // Indicates that the callback is a function
	MIDI_IO_STATUS    = 0x00000020 // MIDI input/output status
)

// Constants for MIDI message types
const (
	MIM_OPEN      = 0x3C1 // MIDI device opened
	MIM_CLOSE     = 0x3C2 // MIDI device closed
	MIM_DATA      = 0x3C3 // MIDI data received
	MIM_LONGDATA  = 0x3C4 // SysEx buffer received
	MIM_ERROR     = 0x3C5 // MIDI error
	MIM_LONGERROR = 0x3C6 // Long MIDI error
	MIM_MOREDATA  = 0x3CC // More MIDI data available
)

var (
	ErrOpenInput   = errors.New("error opening MIDI input device")
	ErrOpenOutput  = errors.New("error opening MIDI output device")
	ErrSend        = errors.New("error sending MIDI message")
	ErrInvalidPort = errors.New("invalid MIDI port")
)

// Struct representing MIDI input device capabilities
type midiInCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	dwSupport      uint32
}

// Struct representing MIDI output device capabilities
type midiOutCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	wTechnology    uint16
	wVoices        uint16
	wNotes         uint16
	wChannelMask   uint16
	dwSupport      uint32
}

// Load the winmm.dll library and required functions
var (
	winmm                 = windows.NewLazySystemDLL("winmm.dll")
	procMidiInGetNumDevs  = winmm.NewProc("midiInGetNumDevs")
	procMidiInGetDevCaps  = winmm.NewProc("midiInGetDevCapsW")
	procMidiInOpen        = winmm.NewProc("midiInOpen")
	procMidiInStart       = winmm.NewProc("midiInStart")
	procMidiInStop        = winmm.NewProc("midiInStop")
	procMidiInClose       = winmm.NewProc("midiInClose")
	procMidiOutGetNumDevs = winmm.NewProc("midiOutGetNumDevs")
	procMidiOutGetDevCaps = winmm.NewProc("midiOutGetDevCapsW")
	procMidiOutOpen       = winmm.NewProc("midiOutOpen")
	procMidiOutShortMsg   = winmm.NewProc("midiOutShortMsg")
	procMidiOutClose      = winmm.NewProc("midiOutClose")
)

// The callback trampoline is created once; Windows limits how many exist per process.
var (
	inCallback     = windows.NewCallback(midiInCallback)
	sourcesMu      sync.RWMutex
	sources        = map[uintptr]*receiveSource{}
	nextSourceSlot atomic.Uintptr
)

// Platform exposes winmm input and output devices. Devices with the same
// product name are grouped, so a controller with one input and one output
// appears as one device with two ports. winmm has no attach notifications;
// the device list is polled.
type Platform struct {
	logger  contracts.Logger
	scanner *platform.Scanner
}

// New creates the winmm platform.
func New(options *contracts.BridgeOptions) (contracts.Platform, error) {
	options.Logger.Info("MIDI platform created for Windows")
	p := &Platform{logger: options.Logger}
	p.scanner = platform.NewScanner(p.list, options.RescanInterval, options.Logger)
	return p, nil
}

func (p *Platform) list() ([]contracts.DeviceDescriptor, error) {
	byName := map[string]*platform.Device{}
	var order []string
	get := func(name string) *platform.Device {
		d, ok := byName[name]
		if !ok {
			d = &platform.Device{DeviceID: name, DeviceName: name}
			byName[name] = d
			order = append(order, name)
		}
		return d
	}

	r0, _, _ := procMidiInGetNumDevs.Call()
	for i := uint32(0); i < uint32(r0); i++ {
		var caps midiInCaps
		r1, _, _ := procMidiInGetDevCaps.Call(uintptr(i), uintptr(unsafe.Pointer(&caps)), unsafe.Sizeof(caps))
		if r1 != 0 {
			p.logger.Warn(fmt.Sprintf("Failed to get information for MIDI input device %d", i))
			continue
		}
		name := windows.UTF16ToString(caps.szPname[:])
		get(name).AddPort(int(i), contracts.Output, name)
	}

	r0, _, _ = procMidiOutGetNumDevs.Call()
	for i := uint32(0); i < uint32(r0); i++ {
		var caps midiOutCaps
		r1, _, _ := procMidiOutGetDevCaps.Call(uintptr(i), uintptr(unsafe.Pointer(&caps)), unsafe.Sizeof(caps))
		if r1 != 0 {
			p.logger.Warn(fmt.Sprintf("Failed to get information for MIDI output device %d", i))
			continue
		}
		name := windows.UTF16ToString(caps.szPname[:])
		get(name).AddPort(int(i), contracts.Input, name)
	}

	devices := make([]contracts.DeviceDescriptor, 0, len(order))
	for _, name := range order {
		devices = append(devices, byName[name])
	}
	return devices, nil
}

// EnumerateDevices implements contracts.Platform.
func (p *Platform) EnumerateDevices() ([]contracts.DeviceDescriptor, error) {
	return p.scanner.Snapshot()
}

// SetDeviceCallback implements contracts.Platform.
func (p *Platform) SetDeviceCallback(cb contracts.DeviceCallback) {
	p.scanner.SetDeviceCallback(cb)
}

// OpenDevice implements contracts.Platform. winmm opens ports, not devices.
func (p *Platform) OpenDevice(desc contracts.DeviceDescriptor, onOpened func(contracts.DeviceHandle)) {
	go onOpened(&deviceHandle{p: p})
}

// Close implements contracts.Platform.
func (p *Platform) Close() error {
	p.scanner.Close()
	p.logger.Info("Windows MIDI platform closed")
	return nil
}

type deviceHandle struct {
	p *Platform
}

func (h *deviceHandle) OpenOutputPort(number int) (contracts.ReceiveSource, error) {
	rs := &receiveSource{logger: h.p.logger, slot: nextSourceSlot.Add(1)}
	sourcesMu.Lock()
	sources[rs.slot] = rs
	sourcesMu.Unlock()

	fdwOpen := CALLBACK_FUNCTION | MIDI_IO_STATUS
	r1, _, err := procMidiInOpen.Call(
		uintptr(unsafe.Pointer(&rs.handle)),
		uintptr(number),
		inCallback,
		rs.slot,
		uintptr(fdwOpen),
	)
	if r1 != 0 {
		rs.forget()
		return nil, fmt.Errorf("%w %d: %v", ErrOpenInput, number, err)
	}

	r1, _, err = procMidiInStart.Call(uintptr(rs.handle))
	if r1 != 0 {
		procMidiInClose.Call(uintptr(rs.handle))
		rs.forget()
		return nil, fmt.Errorf("%w %d: start: %v", ErrOpenInput, number, err)
	}
	return rs, nil
}

func (h *deviceHandle) OpenInputPort(number int) (contracts.SendHandle, error) {
	sh := &sendHandle{}
	r1, _, err := procMidiOutOpen.Call(
		uintptr(unsafe.Pointer(&sh.handle)),
		uintptr(number),
		0,
		0,
		CALLBACK_NULL,
	)
	if r1 != 0 {
		return nil, fmt.Errorf("%w %d: %v", ErrOpenOutput, number, err)
	}
	return sh, nil
}

func (h *deviceHandle) Close() error { return nil }

// receiveSource is one opened winmm input device.
type receiveSource struct {
	logger contracts.Logger
	slot   uintptr
	handle HMIDIIN
	sink   atomic.Value // contracts.FrameSink
	mu     sync.Mutex
	closed bool
}

func (r *receiveSource) Connect(sink contracts.FrameSink) {
	r.sink.Store(sink)
}

func (r *receiveSource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.sink.Store(contracts.FrameSink(nil))

	r1, _, err := procMidiInStop.Call(uintptr(r.handle))
	if r1 != 0 {
		r.logger.Error(fmt.Sprintf("Failed to stop MIDI capture: %v", err))
	}
	r1, _, err = procMidiInClose.Call(uintptr(r.handle))
	r.forget()
	if r1 != 0 {
		return fmt.Errorf("failed to close MIDI input device: %v", err)
	}
	return nil
}

func (r *receiveSource) forget() {
	sourcesMu.Lock()
	delete(sources, r.slot)
	sourcesMu.Unlock()
}

func (r *receiveSource) deliver(raw uintptr) {
	sink, _ := r.sink.Load().(contracts.FrameSink)
	if sink == nil {
		return
	}
	status := byte(raw & 0xFF)
	msg := [3]byte{status, byte((raw >> 8) & 0xFF), byte((raw >> 16) & 0xFF)}
	sink(msg[:1+framer.DataLength(status)])
}

// midiInCallback processes incoming MIDI messages
func midiInCallback(hMidiIn uintptr, wMsg uintptr, dwInstance uintptr, dwParam1 uintptr, dwParam2 uintptr) uintptr {
	sourcesMu.RLock()
	rs := sources[dwInstance]
	sourcesMu.RUnlock()
	if rs == nil {
		return 0
	}

	switch wMsg {
	case MIM_OPEN:
		rs.logger.Debug("MIDI input device opened")
	case MIM_CLOSE:
		rs.logger.Debug("MIDI input device closed")
	case MIM_DATA:
		rs.deliver(dwParam1)
	case MIM_ERROR, MIM_LONGERROR:
		rs.logger.Warn(fmt.Sprintf("MIDI error: msg=0x%X", wMsg))
	case MIM_LONGDATA, MIM_MOREDATA:
		rs.logger.Debug(fmt.Sprintf("MIDI message 0x%X ignored", wMsg))
	default:
		rs.logger.Warn(fmt.Sprintf("Unknown MIDI message: 0x%X", wMsg))
	}
	return 0
}

// sendHandle is one opened winmm output device.
type sendHandle struct {
	mu     sync.Mutex
	handle HMIDIOUT
	closed bool
}

func (s *sendHandle) Send(b []byte, offset, length int) error {
	if offset < 0 || length <= 0 || length > 3 || offset+length > len(b) {
		return fmt.Errorf("%w: range [%d:%d] of %d bytes", ErrInvalidPort, offset, offset+length, len(b))
	}
	var packed uint32
	for i := 0; i < length; i++ {
		packed |= uint32(b[offset+i]) << (8 * i)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: closed", ErrInvalidPort)
	}
	r1, _, err := procMidiOutShortMsg.Call(uintptr(s.handle), uintptr(packed))
	if r1 != 0 {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	return nil
}

func (s *sendHandle) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	r1, _, err := procMidiOutClose.Call(uintptr(s.handle))
	if r1 != 0 {
		return fmt.Errorf("failed to close MIDI output device: %v", err)
	}
	return nil
}

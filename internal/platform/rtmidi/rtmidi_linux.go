//go:build linux && cgo
// +build linux,cgo

package rtmidi

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/leandrodaf/midijack/internal/platform"
	"github.com/leandrodaf/midijack/sdk/contracts"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var (
	ErrOpenIn     = errors.New("error opening MIDI in port")
	ErrOpenOut    = errors.New("error opening MIDI out port")
	ErrListen     = errors.New("error listening on MIDI in port")
	ErrPortClosed = errors.New("MIDI port closed")
)

// Platform exposes the ALSA sequencer ports reported by RtMidi. Ports whose
// names share the client prefix before ':' are grouped into one device.
type Platform struct {
	logger  contracts.Logger
	drv     *rtmididrv.Driver
	scanner *platform.Scanner
}

type device struct {
	platform.Device
	ins  map[int]drivers.In
	outs map[int]drivers.Out
}

// New opens the RtMidi driver.
func New(opts *contracts.BridgeOptions) (contracts.Platform, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("%w: rtmidi: %v", contracts.ErrUnsupportedPlatform, err)
	}
	opts.Logger.Info("RtMidi driver successfully created")

	p := &Platform{logger: opts.Logger, drv: drv}
	p.scanner = platform.NewScanner(p.list, opts.RescanInterval, opts.Logger)
	return p, nil
}

func clientName(port string) string {
	if i := strings.IndexByte(port, ':'); i > 0 {
		return port[:i]
	}
	return port
}

func (p *Platform) list() ([]contracts.DeviceDescriptor, error) {
	ins, err := p.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI in ports: %w", err)
	}
	outs, err := p.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI out ports: %w", err)
	}

	byName := map[string]*device{}
	var order []string
	get := func(name string) *device {
		d, ok := byName[name]
		if !ok {
			d = &device{
				Device: platform.Device{DeviceID: name, DeviceName: name},
				ins:    map[int]drivers.In{},
				outs:   map[int]drivers.Out{},
			}
			byName[name] = d
			order = append(order, name)
		}
		return d
	}

	for _, in := range ins {
		d := get(clientName(in.String()))
		d.ins[in.Number()] = in
		d.AddPort(in.Number(), contracts.Output, in.String())
	}
	for _, out := range outs {
		d := get(clientName(out.String()))
		d.outs[out.Number()] = out
		d.AddPort(out.Number(), contracts.Input, out.String())
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

// OpenDevice implements contracts.Platform.
func (p *Platform) OpenDevice(desc contracts.DeviceDescriptor, onOpened func(contracts.DeviceHandle)) {
	go func() {
		d, ok := desc.(*device)
		if !ok {
			p.logger.Error("invalid RtMidi device", p.logger.Field().String("device", desc.Name()))
			onOpened(nil)
			return
		}
		onOpened(&deviceHandle{p: p, d: d})
	}()
}

// Close implements contracts.Platform.
func (p *Platform) Close() error {
	p.scanner.Close()
	if err := p.drv.Close(); err != nil {
		return fmt.Errorf("close rtmidi driver: %w", err)
	}
	p.logger.Info("RtMidi platform closed")
	return nil
}

type deviceHandle struct {
	p *Platform
	d *device
}

func (h *deviceHandle) OpenOutputPort(number int) (contracts.ReceiveSource, error) {
	in, ok := h.d.ins[number]
	if !ok {
		return nil, fmt.Errorf("%w: in port %d of %s", ErrOpenIn, number, h.d.Name())
	}
	if err := in.Open(); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpenIn, in.String(), err)
	}

	rs := &receiveSource{in: in}
	stop, err := in.Listen(rs.handle, drivers.ListenConfig{
		SysEx:       true,
		ActiveSense: true,
		OnErr: func(err error) {
			h.p.logger.Warn("MIDI in port error",
				h.p.logger.Field().String("port", in.String()),
				h.p.logger.Field().Error("error", err))
		},
	})
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("%w %s: %v", ErrListen, in.String(), err)
	}
	rs.stop = stop
	return rs, nil
}

func (h *deviceHandle) OpenInputPort(number int) (contracts.SendHandle, error) {
	out, ok := h.d.outs[number]
	if !ok {
		return nil, fmt.Errorf("%w: out port %d of %s", ErrOpenOut, number, h.d.Name())
	}
	if err := out.Open(); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpenOut, out.String(), err)
	}
	return &sendHandle{out: out}, nil
}

func (h *deviceHandle) Close() error { return nil }

type receiveSource struct {
	in   drivers.In
	sink atomic.Value // contracts.FrameSink

	mu   sync.Mutex
	stop func()
}

func (r *receiveSource) handle(msg []byte, _ int32) {
	if sink, _ := r.sink.Load().(contracts.FrameSink); sink != nil {
		sink(msg)
	}
}

func (r *receiveSource) Connect(sink contracts.FrameSink) {
	r.sink.Store(sink)
}

func (r *receiveSource) Close() error {
	r.sink.Store(contracts.FrameSink(nil))
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop == nil {
		return nil
	}
	r.stop()
	r.stop = nil
	return r.in.Close()
}

type sendHandle struct {
	mu     sync.Mutex
	out    drivers.Out
	closed bool
}

func (s *sendHandle) Send(b []byte, offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(b) {
		return fmt.Errorf("send range [%d:%d] out of bounds for %d bytes", offset, offset+length, len(b))
	}
	data := make([]byte, length)
	copy(data, b[offset:offset+length])

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrPortClosed
	}
	return s.out.Send(data)
}

func (s *sendHandle) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.out.Close()
}

//go:build darwin && cgo
// +build darwin,cgo

package coremidi

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/leandrodaf/midijack/internal/platform"
	"github.com/leandrodaf/midijack/sdk/contracts"
	"github.com/youpy/go-coremidi"
)

// Error definitions for CoreMIDI connection and handling issues.
var (
	ErrInvalidDevice       = errors.New("invalid CoreMIDI device")
	ErrCreateInputPort     = errors.New("error creating input port")
	ErrCreateOutputPort    = errors.New("error creating output port")
	ErrMIDIConnectionError = errors.New("error connecting to MIDI source")
	ErrPortNotFound        = errors.New("port not found on device")
)

// internalPortConnection is an interface for handling disconnection from a MIDI port.
type internalPortConnection interface {
	Disconnect()
}

// Platform exposes CoreMIDI sources and destinations as devices, one per
// entity, so a USB interface with one input and one output appears as one
// device with two ports. Virtual endpoints that belong to no device are not
// listed.
type Platform struct {
	logger  contracts.Logger
	client  coremidi.Client
	inPort  coremidi.InputPort
	outPort coremidi.OutputPort
	scanner *platform.Scanner

	mu        sync.RWMutex
	receivers map[*coremidi.Object]*receiveSource
}

// device keeps the CoreMIDI endpoints behind a descriptor's ports.
type device struct {
	platform.Device
	sources      map[int]coremidi.Source
	destinations map[int]coremidi.Destination
}

// New creates a CoreMIDI client named after opts.ClientName. A single input
// port receives from every connected source; CoreMIDI ports cannot be
// disposed through go-coremidi, so none are created per attach.
func New(opts *contracts.BridgeOptions) (contracts.Platform, error) {
	client, err := coremidi.NewClient(opts.ClientName)
	if err != nil {
		return nil, err
	}
	p := &Platform{
		logger:    opts.Logger,
		client:    client,
		receivers: map[*coremidi.Object]*receiveSource{},
	}
	p.inPort, err = coremidi.NewInputPort(client, opts.ClientName+" Input", p.handleMIDIMessage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateInputPort, err)
	}
	p.outPort, err = coremidi.NewOutputPort(client, opts.ClientName+" Output")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateOutputPort, err)
	}
	opts.Logger.Info("CoreMIDI client successfully created")

	p.scanner = platform.NewScanner(p.list, opts.RescanInterval, opts.Logger)
	return p, nil
}

// entityKey names the device built from the index-th entity of a CoreMIDI device.
func entityKey(manufacturer, dev, ent string, index int) string {
	key := dev
	if manufacturer != "" {
		key = manufacturer + "/" + key
	}
	if ent == "" {
		ent = strconv.Itoa(index)
	}
	return key + "/" + ent
}

// entityName is the display name of an entity's device.
func entityName(dev, ent string) string {
	switch {
	case ent == "" || ent == dev:
		return dev
	case dev == "":
		return ent
	}
	return dev + " " + ent
}

// newDevice numbers sources and destinations from zero in CoreMIDI order.
func newDevice(key, name string, sourceNames, destinationNames []string) *device {
	d := &device{
		Device:       platform.Device{DeviceID: key, DeviceName: name},
		sources:      map[int]coremidi.Source{},
		destinations: map[int]coremidi.Destination{},
	}
	for i, n := range sourceNames {
		d.AddPort(i, contracts.Output, n)
	}
	for i, n := range destinationNames {
		d.AddPort(i, contracts.Input, n)
	}
	return d
}

// list walks devices and their entities. Entities without endpoints are skipped.
func (p *Platform) list() ([]contracts.DeviceDescriptor, error) {
	devices, err := coremidi.AllDevices()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI devices: %w", err)
	}

	var out []contracts.DeviceDescriptor
	for _, dev := range devices {
		entities, err := dev.Entities()
		if err != nil {
			p.logger.Warn("Failed to list MIDI entities", p.logger.Field().String("device", dev.Name()), p.logger.Field().Error("error", err))
			continue
		}
		for i, ent := range entities {
			sources, err := ent.Sources()
			if err != nil {
				return nil, fmt.Errorf("error listing MIDI sources of %s: %w", dev.Name(), err)
			}
			destinations, err := ent.Destinations()
			if err != nil {
				return nil, fmt.Errorf("error listing MIDI destinations of %s: %w", dev.Name(), err)
			}
			if len(sources) == 0 && len(destinations) == 0 {
				continue
			}

			sourceNames := make([]string, len(sources))
			for j, src := range sources {
				sourceNames[j] = src.Name()
			}
			destinationNames := make([]string, len(destinations))
			for j, dst := range destinations {
				destinationNames[j] = dst.Name()
			}

			d := newDevice(
				entityKey(dev.Manufacturer(), dev.Name(), ent.Name(), i),
				entityName(dev.Name(), ent.Name()),
				sourceNames, destinationNames)
			for j, src := range sources {
				d.sources[j] = src
			}
			for j, dst := range destinations {
				d.destinations[j] = dst
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// EnumerateDevices implements contracts.Platform.
func (p *Platform) EnumerateDevices() ([]contracts.DeviceDescriptor, error) {
	return p.scanner.Snapshot()
}

// SetDeviceCallback implements contracts.Platform. CoreMIDI setup changes are
// detected by polling.
func (p *Platform) SetDeviceCallback(cb contracts.DeviceCallback) {
	p.scanner.SetDeviceCallback(cb)
}

// OpenDevice implements contracts.Platform. CoreMIDI endpoints need no device
// level open, so the completion only validates the descriptor.
func (p *Platform) OpenDevice(desc contracts.DeviceDescriptor, onOpened func(contracts.DeviceHandle)) {
	go func() {
		d, ok := desc.(*device)
		if !ok {
			p.logger.Error(ErrInvalidDevice.Error(), p.logger.Field().String("device", desc.Name()))
			onOpened(nil)
			return
		}
		onOpened(&deviceHandle{p: p, d: d})
	}()
}

// Close implements contracts.Platform.
func (p *Platform) Close() error {
	p.scanner.Close()
	p.logger.Info("CoreMIDI platform closed")
	return nil
}

type deviceHandle struct {
	p *Platform
	d *device
}

func (h *deviceHandle) OpenOutputPort(number int) (contracts.ReceiveSource, error) {
	src, ok := h.d.sources[number]
	if !ok {
		return nil, fmt.Errorf("%w: source %d of %s", ErrPortNotFound, number, h.d.Name())
	}

	rs := &receiveSource{p: h.p, key: src.Object}
	h.p.mu.Lock()
	h.p.receivers[rs.key] = rs
	h.p.mu.Unlock()

	conn, err := h.p.inPort.Connect(src)
	if err != nil {
		h.p.forget(rs.key)
		return nil, fmt.Errorf("%w: %v", ErrMIDIConnectionError, err)
	}
	rs.mu.Lock()
	rs.conn = conn
	rs.mu.Unlock()
	return rs, nil
}

func (h *deviceHandle) OpenInputPort(number int) (contracts.SendHandle, error) {
	dst, ok := h.d.destinations[number]
	if !ok {
		return nil, fmt.Errorf("%w: destination %d of %s", ErrPortNotFound, number, h.d.Name())
	}
	return &sendHandle{port: h.p.outPort, dst: dst}, nil
}

func (h *deviceHandle) Close() error { return nil }

// handleMIDIMessage routes packets of the shared input port by source.
func (p *Platform) handleMIDIMessage(src coremidi.Source, packet coremidi.Packet) {
	p.mu.RLock()
	rs := p.receivers[src.Object]
	p.mu.RUnlock()
	if rs == nil {
		return
	}
	if sink, _ := rs.sink.Load().(contracts.FrameSink); sink != nil {
		sink(packet.Data)
	}
}

func (p *Platform) forget(key *coremidi.Object) {
	p.mu.Lock()
	delete(p.receivers, key)
	p.mu.Unlock()
}

// receiveSource is one source connected to the shared input port. Packets
// that arrive before Connect are dropped.
type receiveSource struct {
	p    *Platform
	key  *coremidi.Object
	sink atomic.Value // contracts.FrameSink
	mu   sync.Mutex
	conn internalPortConnection
}

func (r *receiveSource) Connect(sink contracts.FrameSink) {
	r.sink.Store(sink)
}

func (r *receiveSource) Close() error {
	r.sink.Store(contracts.FrameSink(nil))
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Disconnect()
		r.conn = nil
		r.p.forget(r.key)
	}
	return nil
}

type sendHandle struct {
	mu   sync.Mutex
	port coremidi.OutputPort
	dst  coremidi.Destination
}

func (s *sendHandle) Send(b []byte, offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(b) {
		return fmt.Errorf("send range [%d:%d] out of bounds for %d bytes", offset, offset+length, len(b))
	}
	data := make([]byte, length)
	copy(data, b[offset:offset+length])

	s.mu.Lock()
	defer s.mu.Unlock()
	packet := coremidi.NewPacket(data, 0)
	return packet.Send(&s.port, &s.dst)
}

func (s *sendHandle) Close() error { return nil }

// Package platformtest provides an in-memory contracts.Platform for tests.
package platformtest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/midijack/internal/platform"
	"github.com/leandrodaf/midijack/sdk/contracts"
)

// ErrOpenFailed is returned by ports configured to fail.
var ErrOpenFailed = errors.New("fake port open failed")

// Platform is a fake native MIDI subsystem. Device opens complete on a new
// goroutine, like the real asynchronous platforms.
type Platform struct {
	mu       sync.Mutex
	devices  map[string]*platform.Device
	order    []string
	cb       contracts.DeviceCallback
	sources  map[contracts.EndpointID]*Source
	sends    map[contracts.EndpointID]*Sink
	failOpen map[string]bool
	closed   bool
	opens    sync.WaitGroup

	held    bool
	pending []func()
	handles []*handle
}

// New creates an empty fake platform.
func New() *Platform {
	return &Platform{
		devices:  map[string]*platform.Device{},
		sources:  map[contracts.EndpointID]*Source{},
		sends:    map[contracts.EndpointID]*Sink{},
		failOpen: map[string]bool{},
	}
}

// NewDevice builds a device descriptor with one port per direction given.
func NewDevice(name string, dirs ...contracts.Direction) *platform.Device {
	d := &platform.Device{DeviceID: name, DeviceName: name}
	for i, dir := range dirs {
		d.AddPort(i, dir, fmt.Sprintf("%s %s %d", name, dir, i))
	}
	return d
}

// Plug adds a device without notifying; it is seen by EnumerateDevices.
func (p *Platform) Plug(d *platform.Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.devices[d.ID()]; !ok {
		p.order = append(p.order, d.ID())
	}
	p.devices[d.ID()] = d
}

// Attach adds a device and notifies the callback.
func (p *Platform) Attach(d *platform.Device) {
	p.Plug(d)
	p.mu.Lock()
	cb := p.cb
	p.mu.Unlock()
	if cb != nil {
		cb.OnDeviceAttached(d)
	}
}

// Detach removes a device and notifies the callback.
func (p *Platform) Detach(d *platform.Device) {
	p.mu.Lock()
	delete(p.devices, d.ID())
	for i, id := range p.order {
		if id == d.ID() {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	cb := p.cb
	p.mu.Unlock()
	if cb != nil {
		cb.OnDeviceDetached(d)
	}
}

// FailOpen makes OpenDevice report failure for the named device.
func (p *Platform) FailOpen(deviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOpen[deviceID] = true
}

// Deliver pushes raw bytes into the receive port with the given id. It reports
// false when the port is not open or not connected.
func (p *Platform) Deliver(id contracts.EndpointID, b []byte) bool {
	p.mu.Lock()
	src := p.sources[id]
	p.mu.Unlock()
	if src == nil {
		return false
	}
	return src.deliver(b)
}

// Sent returns every message written to the send port with the given id.
func (p *Platform) Sent(id contracts.EndpointID) [][]byte {
	p.mu.Lock()
	s := p.sends[id]
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.messages()
}

// IsOpen reports whether a port with the given id is currently open.
func (p *Platform) IsOpen(id contracts.EndpointID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sources[id]; ok && !s.isClosed() {
		return true
	}
	if s, ok := p.sends[id]; ok && !s.isClosed() {
		return true
	}
	return false
}

// WaitOpens blocks until every OpenDevice completion has run, including
// those deferred by Hold.
func (p *Platform) WaitOpens() { p.opens.Wait() }

// EnumerateDevices implements contracts.Platform.
func (p *Platform) EnumerateDevices() ([]contracts.DeviceDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]contracts.DeviceDescriptor, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.devices[id])
	}
	return out, nil
}

// OpenDevice implements contracts.Platform.
func (p *Platform) OpenDevice(desc contracts.DeviceDescriptor, onOpened func(contracts.DeviceHandle)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fail := p.failOpen[desc.ID()]

	p.opens.Add(1)
	complete := func() {
		defer p.opens.Done()
		if fail {
			onOpened(nil)
			return
		}
		h := &handle{p: p, desc: desc}
		p.mu.Lock()
		p.handles = append(p.handles, h)
		p.mu.Unlock()
		onOpened(h)
	}
	if p.held {
		p.pending = append(p.pending, complete)
		return
	}
	go complete()
}

// Hold defers device open completions until Release.
func (p *Platform) Hold() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = true
}

// Release completes every deferred open and stops deferring.
func (p *Platform) Release() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.held = false
	p.mu.Unlock()
	for _, complete := range pending {
		go complete()
	}
}

// PendingOpens returns how many open completions Hold is deferring.
func (p *Platform) PendingOpens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// ClosedHandles returns how many opened device handles were closed.
func (p *Platform) ClosedHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, h := range p.handles {
		if h.closed {
			n++
		}
	}
	return n
}

// SetDeviceCallback implements contracts.Platform.
func (p *Platform) SetDeviceCallback(cb contracts.DeviceCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb = cb
}

// Close implements contracts.Platform.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cb = nil
	return nil
}

// Closed reports whether Close was called.
func (p *Platform) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type handle struct {
	p      *Platform
	desc   contracts.DeviceDescriptor
	closed bool
}

func (h *handle) port(number int, dir contracts.Direction) (contracts.PortInfo, error) {
	for _, port := range h.desc.Ports() {
		if port.Number == number && port.Direction == dir {
			return port, nil
		}
	}
	return contracts.PortInfo{}, fmt.Errorf("%w: no %s port %d", ErrOpenFailed, dir, number)
}

func (h *handle) OpenOutputPort(number int) (contracts.ReceiveSource, error) {
	port, err := h.port(number, contracts.Output)
	if err != nil {
		return nil, err
	}
	src := &Source{}
	h.p.mu.Lock()
	h.p.sources[port.ID] = src
	h.p.mu.Unlock()
	return src, nil
}

func (h *handle) OpenInputPort(number int) (contracts.SendHandle, error) {
	port, err := h.port(number, contracts.Input)
	if err != nil {
		return nil, err
	}
	s := &Sink{}
	h.p.mu.Lock()
	h.p.sends[port.ID] = s
	h.p.mu.Unlock()
	return s, nil
}

func (h *handle) Close() error {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	h.closed = true
	return nil
}

// Source is a fake receive port.
type Source struct {
	mu     sync.Mutex
	sink   contracts.FrameSink
	closed bool
}

func (s *Source) Connect(sink contracts.FrameSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sink = nil
	return nil
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Source) deliver(b []byte) bool {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return false
	}
	sink(b)
	return true
}

// Sink is a fake send port recording what was written.
type Sink struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (s *Sink) Send(b []byte, offset, length int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("fake port closed")
	}
	s.sent = append(s.sent, append([]byte(nil), b[offset:offset+length]...))
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Sink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Sink) messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

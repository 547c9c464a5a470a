// Package registry tracks the endpoints of attached MIDI devices.
//
// Platform notifications (attach, detach, open completion) arrive on platform
// threads and are turned into values on a channel. A single goroutine consumes
// that channel and is the only writer of the endpoint collections; readers take
// the per-collection read lock.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/leandrodaf/midijack/internal/framer"
	"github.com/leandrodaf/midijack/internal/queue"
	"github.com/leandrodaf/midijack/sdk/contracts"
)

type eventKind int

const (
	deviceAttached eventKind = iota
	deviceOpened
	deviceDetached
)

type deviceEvent struct {
	kind   eventKind
	desc   contracts.DeviceDescriptor
	handle contracts.DeviceHandle
	gen    uint64
}

type output struct {
	endpoint contracts.Endpoint
	source   contracts.ReceiveSource
	framer   *framer.Framer
}

type input struct {
	endpoint contracts.Endpoint
	mu       sync.Mutex
	handle   contracts.SendHandle
}

// Registry owns the output (receive) and input (send) endpoint collections.
type Registry struct {
	platform contracts.Platform
	queue    *queue.Inbound
	logger   contracts.Logger

	events    chan deviceEvent
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	postMu  sync.RWMutex
	stopped bool

	outMu   sync.RWMutex
	outputs []*output

	inMu   sync.RWMutex
	inputs []*input

	// Owned by the run goroutine.
	gen      uint64
	attached map[string]uint64
	handles  map[string]contracts.DeviceHandle
}

// New creates a registry feeding received messages into q.
func New(p contracts.Platform, q *queue.Inbound, logger contracts.Logger, eventBuffer int) *Registry {
	if eventBuffer <= 0 {
		eventBuffer = contracts.DefaultEventBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		platform: p,
		queue:    q,
		logger:   logger,
		events:   make(chan deviceEvent, eventBuffer),
		ctx:      ctx,
		cancel:   cancel,
		attached: map[string]uint64{},
		handles:  map[string]contracts.DeviceHandle{},
	}
}

// Start subscribes to device notifications, begins processing them and
// attaches every device already present. Cancelling ctx stops processing like
// Stop does, minus the port cleanup. A failed enumeration is logged and
// returned, but the registry keeps running and will pick up later attachments.
func (r *Registry) Start(ctx context.Context) error {
	var err error
	r.startOnce.Do(func() {
		context.AfterFunc(ctx, r.cancel)
		r.platform.SetDeviceCallback(r)

		r.wg.Add(1)
		go r.run()

		var devices []contracts.DeviceDescriptor
		devices, err = r.platform.EnumerateDevices()
		if err != nil {
			r.logger.Warn("Failed to enumerate MIDI devices", r.logger.Field().Error("error", err))
			err = fmt.Errorf("enumerate devices: %w", err)
			return
		}
		r.logger.Info("MIDI devices enumerated", r.logger.Field().Int("count", len(devices)))
		for _, d := range devices {
			r.OnDeviceAttached(d)
		}
	})
	return err
}

// Stop ends event processing and closes every open port and device.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		r.platform.SetDeviceCallback(nil)
		r.cancel()
		r.postMu.Lock()
		r.stopped = true
		r.postMu.Unlock()
		r.wg.Wait()
		r.drainEvents()

		r.outMu.Lock()
		outputs := r.outputs
		r.outputs = nil
		r.outMu.Unlock()
		for _, o := range outputs {
			r.closeOutput(o)
		}

		r.inMu.Lock()
		inputs := r.inputs
		r.inputs = nil
		r.inMu.Unlock()
		for _, in := range inputs {
			r.closeInput(in)
		}

		for id, h := range r.handles {
			if err := h.Close(); err != nil {
				r.logger.Warn("Failed to close MIDI device", r.logger.Field().String("device", id), r.logger.Field().Error("error", err))
			}
		}
		r.handles = map[string]contracts.DeviceHandle{}
		r.attached = map[string]uint64{}
		r.logger.Info("Device registry stopped")
	})
}

// OnDeviceAttached implements contracts.DeviceCallback.
func (r *Registry) OnDeviceAttached(desc contracts.DeviceDescriptor) {
	r.post(deviceEvent{kind: deviceAttached, desc: desc})
}

// OnDeviceDetached implements contracts.DeviceCallback.
func (r *Registry) OnDeviceDetached(desc contracts.DeviceDescriptor) {
	r.post(deviceEvent{kind: deviceDetached, desc: desc})
}

// post hands an event to the run goroutine. It waits for buffer space, which
// only happens during bursts of device notifications, and gives up once the
// registry is stopped. Events that lose the race with Stop are either drained
// by it or released here, so a late device handle is always closed.
func (r *Registry) post(ev deviceEvent) {
	r.postMu.RLock()
	defer r.postMu.RUnlock()
	if r.stopped {
		releaseEvent(ev)
		return
	}
	select {
	case r.events <- ev:
	case <-r.ctx.Done():
		releaseEvent(ev)
	}
}

func releaseEvent(ev deviceEvent) {
	if ev.handle != nil {
		_ = ev.handle.Close()
	}
}

// drainEvents closes device handles whose open completed after processing stopped.
func (r *Registry) drainEvents() {
	for {
		select {
		case ev := <-r.events:
			releaseEvent(ev)
		default:
			return
		}
	}
}

func (r *Registry) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case ev := <-r.events:
			switch ev.kind {
			case deviceAttached:
				r.handleAttach(ev.desc)
			case deviceOpened:
				r.handleOpened(ev)
			case deviceDetached:
				r.handleDetach(ev.desc)
			}
		}
	}
}

func (r *Registry) handleAttach(desc contracts.DeviceDescriptor) {
	id := desc.ID()
	if _, ok := r.attached[id]; ok {
		r.logger.Debug("Device already attached", r.logger.Field().String("device", desc.Name()))
		return
	}
	r.gen++
	gen := r.gen
	r.attached[id] = gen

	r.logger.Info("MIDI device attached",
		r.logger.Field().String("device", desc.Name()),
		r.logger.Field().Int("ports", len(desc.Ports())))

	r.platform.OpenDevice(desc, func(h contracts.DeviceHandle) {
		r.post(deviceEvent{kind: deviceOpened, desc: desc, handle: h, gen: gen})
	})
}

func (r *Registry) handleOpened(ev deviceEvent) {
	id := ev.desc.ID()
	if gen, ok := r.attached[id]; !ok || gen != ev.gen {
		// Detached (or re-attached) before the open completed.
		r.logger.Debug("Discarding stale device open", r.logger.Field().String("device", ev.desc.Name()))
		if ev.handle != nil {
			_ = ev.handle.Close()
		}
		return
	}
	if ev.handle == nil {
		r.logger.Warn("Failed to open MIDI device", r.logger.Field().String("device", ev.desc.Name()))
		delete(r.attached, id)
		return
	}
	r.handles[id] = ev.handle

	for _, port := range ev.desc.Ports() {
		var err error
		if port.Direction == contracts.Output {
			err = r.openOutput(ev.handle, port)
		} else {
			err = r.openInput(ev.handle, port)
		}
		if err != nil {
			r.logger.Warn("Failed to open MIDI port",
				r.logger.Field().String("device", ev.desc.Name()),
				r.logger.Field().String("port", port.String()),
				r.logger.Field().Error("error", err))
		}
	}
}

func (r *Registry) openOutput(h contracts.DeviceHandle, port contracts.PortInfo) error {
	if _, ok := r.FindOutput(port.ID); ok {
		return fmt.Errorf("output %d already registered", port.ID)
	}
	src, err := h.OpenOutputPort(port.Number)
	if err != nil {
		return err
	}
	o := &output{
		endpoint: contracts.Endpoint{ID: port.ID, Name: port.Name, Direction: contracts.Output},
		source:   src,
		framer:   framer.New(port.ID, r.queue.Push, r.logger),
	}
	src.Connect(o.framer.Write)

	r.outMu.Lock()
	r.outputs = append(r.outputs, o)
	r.outMu.Unlock()

	r.logger.Debug("Output endpoint registered",
		r.logger.Field().Int32("endpointID", int32(port.ID)),
		r.logger.Field().String("name", port.Name))
	return nil
}

func (r *Registry) openInput(h contracts.DeviceHandle, port contracts.PortInfo) error {
	if _, ok := r.FindInput(port.ID); ok {
		return fmt.Errorf("input %d already registered", port.ID)
	}
	handle, err := h.OpenInputPort(port.Number)
	if err != nil {
		return err
	}
	in := &input{
		endpoint: contracts.Endpoint{ID: port.ID, Name: port.Name, Direction: contracts.Input},
		handle:   handle,
	}

	r.inMu.Lock()
	r.inputs = append(r.inputs, in)
	r.inMu.Unlock()

	r.logger.Debug("Input endpoint registered",
		r.logger.Field().Int32("endpointID", int32(port.ID)),
		r.logger.Field().String("name", port.Name))
	return nil
}

func (r *Registry) handleDetach(desc contracts.DeviceDescriptor) {
	id := desc.ID()
	delete(r.attached, id)

	for _, port := range desc.Ports() {
		if port.Direction == contracts.Output {
			if o := r.removeOutput(port.ID); o != nil {
				r.closeOutput(o)
			}
		} else {
			if in := r.removeInput(port.ID); in != nil {
				r.closeInput(in)
			}
		}
	}

	if h, ok := r.handles[id]; ok {
		delete(r.handles, id)
		if err := h.Close(); err != nil {
			r.logger.Warn("Failed to close MIDI device", r.logger.Field().String("device", desc.Name()), r.logger.Field().Error("error", err))
		}
	}
	r.logger.Info("MIDI device detached", r.logger.Field().String("device", desc.Name()))
}

func (r *Registry) removeOutput(id contracts.EndpointID) *output {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	for i, o := range r.outputs {
		if o.endpoint.ID == id {
			r.outputs = append(r.outputs[:i:i], r.outputs[i+1:]...)
			return o
		}
	}
	return nil
}

func (r *Registry) removeInput(id contracts.EndpointID) *input {
	r.inMu.Lock()
	defer r.inMu.Unlock()
	for i, in := range r.inputs {
		if in.endpoint.ID == id {
			r.inputs = append(r.inputs[:i:i], r.inputs[i+1:]...)
			return in
		}
	}
	return nil
}

func (r *Registry) closeOutput(o *output) {
	if err := o.source.Close(); err != nil {
		r.logger.Warn("Failed to close output port",
			r.logger.Field().Int32("endpointID", int32(o.endpoint.ID)),
			r.logger.Field().Error("error", err))
	}
	o.framer.Reset()
}

func (r *Registry) closeInput(in *input) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if err := in.handle.Close(); err != nil {
		r.logger.Warn("Failed to close input port",
			r.logger.Field().Int32("endpointID", int32(in.endpoint.ID)),
			r.logger.Field().Error("error", err))
	}
	in.handle = nil
}

// CountOutputs returns the number of registered output endpoints.
func (r *Registry) CountOutputs() int {
	r.outMu.RLock()
	defer r.outMu.RUnlock()
	return len(r.outputs)
}

// CountInputs returns the number of registered input endpoints.
func (r *Registry) CountInputs() int {
	r.inMu.RLock()
	defer r.inMu.RUnlock()
	return len(r.inputs)
}

// OutputAt returns the identifier at index in attach order.
func (r *Registry) OutputAt(index int) (contracts.EndpointID, bool) {
	r.outMu.RLock()
	defer r.outMu.RUnlock()
	if index < 0 || index >= len(r.outputs) {
		return 0, false
	}
	return r.outputs[index].endpoint.ID, true
}

// InputAt returns the identifier at index in attach order.
func (r *Registry) InputAt(index int) (contracts.EndpointID, bool) {
	r.inMu.RLock()
	defer r.inMu.RUnlock()
	if index < 0 || index >= len(r.inputs) {
		return 0, false
	}
	return r.inputs[index].endpoint.ID, true
}

// FindOutput looks up an output endpoint by identifier.
func (r *Registry) FindOutput(id contracts.EndpointID) (contracts.Endpoint, bool) {
	r.outMu.RLock()
	defer r.outMu.RUnlock()
	for _, o := range r.outputs {
		if o.endpoint.ID == id {
			return o.endpoint, true
		}
	}
	return contracts.Endpoint{}, false
}

// FindInput looks up an input endpoint by identifier.
func (r *Registry) FindInput(id contracts.EndpointID) (contracts.Endpoint, bool) {
	r.inMu.RLock()
	defer r.inMu.RUnlock()
	for _, in := range r.inputs {
		if in.endpoint.ID == id {
			return in.endpoint, true
		}
	}
	return contracts.Endpoint{}, false
}

// Outputs returns a snapshot of the output endpoints in attach order.
func (r *Registry) Outputs() []contracts.Endpoint {
	r.outMu.RLock()
	defer r.outMu.RUnlock()
	out := make([]contracts.Endpoint, len(r.outputs))
	for i, o := range r.outputs {
		out[i] = o.endpoint
	}
	return out
}

// Inputs returns a snapshot of the input endpoints in attach order.
func (r *Registry) Inputs() []contracts.Endpoint {
	r.inMu.RLock()
	defer r.inMu.RUnlock()
	out := make([]contracts.Endpoint, len(r.inputs))
	for i, in := range r.inputs {
		out[i] = in.endpoint
	}
	return out
}

// Send writes msg to the input endpoint id.
func (r *Registry) Send(id contracts.EndpointID, msg []byte) error {
	r.inMu.RLock()
	var target *input
	for _, in := range r.inputs {
		if in.endpoint.ID == id {
			target = in
			break
		}
	}
	r.inMu.RUnlock()
	if target == nil {
		return fmt.Errorf("%w: input %d", contracts.ErrNotFound, id)
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	if target.handle == nil {
		return fmt.Errorf("%w: input %d closed", contracts.ErrNotFound, id)
	}
	return target.handle.Send(msg, 0, len(msg))
}

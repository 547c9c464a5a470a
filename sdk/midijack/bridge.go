// Package midijack is the polling surface of the MIDI bridge.
//
// A Bridge tracks the MIDI devices attached to the machine, buffers the
// messages they send and writes messages to them. Every polling method is
// total: when the bridge is not started, already closed, or the endpoint is
// unknown, it returns a sentinel instead of an error, so it can sit directly
// behind a foreign-function boundary.
package midijack

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/leandrodaf/midijack/internal/queue"
	"github.com/leandrodaf/midijack/internal/registry"
	"github.com/leandrodaf/midijack/internal/wire"
	"github.com/leandrodaf/midijack/sdk/contracts"
	"github.com/looplab/fsm"
)

// NotReadyName is returned by SourceName and DestinationName when the name is unavailable.
const NotReadyName = "(not ready)"

// Bridge lifecycle states and events.
const (
	StateIdle   = "idle"
	StateReady  = "ready"
	StateClosed = "closed"

	eventStart = "start"
	eventClose = "close"
)

// Bridge connects a host to the platform's MIDI endpoints. Create one per
// process with New, call Start, poll from a single host thread and Close on
// shutdown.
type Bridge struct {
	id       uuid.UUID
	options  contracts.BridgeOptions
	logger   contracts.Logger
	platform contracts.Platform
	queue    *queue.Inbound
	registry *registry.Registry
	state    *fsm.FSM
}

// New creates a bridge with the specified options. The native MIDI subsystem
// of the current OS is opened unless contracts.WithPlatform provides one.
//
// opts ...contracts.Option: A variadic list of option functions to customize the bridge configuration.
//
// Returns:
//   - *Bridge: The bridge, in the idle state.
//   - error: An error, if the options or the platform could not be initialized.
func New(opts ...contracts.Option) (*Bridge, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	p := options.Platform
	if p == nil {
		if p, err = NewPlatform(&options); err != nil {
			return nil, err
		}
	}

	b := &Bridge{
		id:       uuid.New(),
		options:  options,
		logger:   options.Logger,
		platform: p,
		queue:    queue.New(options.QueueCapacity, options.Logger),
	}
	b.registry = registry.New(p, b.queue, options.Logger, options.EventBuffer)
	b.state = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateReady},
			{Name: eventClose, Src: []string{StateIdle, StateReady}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				b.logger.Info("MIDI bridge state changed",
					b.logger.Field().String("bridge", b.id.String()),
					b.logger.Field().String("from", e.Src),
					b.logger.Field().String("to", e.Dst))
			},
		},
	)

	b.logger.Info("MIDI bridge created",
		b.logger.Field().String("bridge", b.id.String()),
		b.logger.Field().String("client", options.ClientName),
		b.logger.Field().Int("queueCapacity", options.QueueCapacity))
	return b, nil
}

// ID returns the instance identifier used in log entries.
func (b *Bridge) ID() uuid.UUID { return b.id }

// State returns the lifecycle state: StateIdle, StateReady or StateClosed.
func (b *Bridge) State() string { return b.state.Current() }

// Start subscribes to device notifications and attaches the devices already
// present. Devices appear in the counts once their asynchronous open completes.
// The bridge becomes ready even when the initial enumeration fails; that error
// is returned for information.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.state.Can(eventStart) {
		return fmt.Errorf("%w: cannot start from state %s", contracts.ErrNotReady, b.state.Current())
	}
	regErr := b.registry.Start(ctx)
	if err := b.state.Event(ctx, eventStart); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}
	return regErr
}

// Close releases every port and the native MIDI subsystem. Further polling
// returns sentinels. Calling Close more than once is harmless.
func (b *Bridge) Close() error {
	if !b.state.Can(eventClose) {
		return nil
	}
	if err := b.state.Event(context.Background(), eventClose); err != nil {
		return fmt.Errorf("close bridge: %w", err)
	}
	b.registry.Stop()
	if n := b.queue.Drain(); n > 0 {
		b.logger.Debug("Discarded undelivered MIDI messages", b.logger.Field().Int("count", n))
	}
	if err := b.platform.Close(); err != nil {
		return fmt.Errorf("close platform: %w", err)
	}
	return nil
}

func (b *Bridge) ready() bool {
	return b != nil && b.state != nil && b.state.Is(StateReady)
}

// CountSources returns the number of endpoints this process receives from.
func (b *Bridge) CountSources() int32 {
	if !b.ready() {
		return 0
	}
	return int32(b.registry.CountOutputs())
}

// CountDestinations returns the number of endpoints this process can send to.
func (b *Bridge) CountDestinations() int32 {
	if !b.ready() {
		return 0
	}
	return int32(b.registry.CountInputs())
}

// SourceIDAt returns the identifier of the source at index, in attach order,
// or 0 when index is out of range.
func (b *Bridge) SourceIDAt(index int32) int32 {
	if !b.ready() {
		return 0
	}
	id, ok := b.registry.OutputAt(int(index))
	if !ok {
		return 0
	}
	return int32(id)
}

// DestinationIDAt returns the identifier of the destination at index, in
// attach order, or 0 when index is out of range.
func (b *Bridge) DestinationIDAt(index int32) int32 {
	if !b.ready() {
		return 0
	}
	id, ok := b.registry.InputAt(int(index))
	if !ok {
		return 0
	}
	return int32(id)
}

// SourceName returns the display name of a source, or NotReadyName.
func (b *Bridge) SourceName(id int32) string {
	if !b.ready() {
		return NotReadyName
	}
	ep, ok := b.registry.FindOutput(contracts.EndpointID(id))
	if !ok {
		return NotReadyName
	}
	return ep.Name
}

// DestinationName returns the display name of a destination, or NotReadyName.
func (b *Bridge) DestinationName(id int32) string {
	if !b.ready() {
		return NotReadyName
	}
	ep, ok := b.registry.FindInput(contracts.EndpointID(id))
	if !ok {
		return NotReadyName
	}
	return ep.Name
}

// DequeueIncoming removes the oldest received message and returns it encoded,
// or 0 when there is none. A message from endpoint 0 with status 0 and zero
// data also encodes to 0; use DequeueMessage when that matters.
func (b *Bridge) DequeueIncoming() int64 {
	m, ok := b.DequeueMessage()
	if !ok {
		return 0
	}
	return int64(wire.Encode(m))
}

// DequeueMessage removes the oldest received message.
func (b *Bridge) DequeueMessage() (contracts.Message, bool) {
	if !b.ready() {
		return contracts.Message{}, false
	}
	return b.queue.Pop()
}

// SendMessage decodes an encoded message and writes it as a 3-byte short
// message to the destination named in its low 32 bits. Failures are logged
// and otherwise ignored.
func (b *Bridge) SendMessage(encoded int64) {
	if err := b.Send(wire.Decode(uint64(encoded))); err != nil && b != nil {
		b.logger.Debug("MIDI message not sent",
			b.logger.Field().Int64("encoded", encoded),
			b.logger.Field().Error("error", err))
	}
}

// Send writes m to the destination m.Source as a 3-byte short message.
func (b *Bridge) Send(m contracts.Message) error {
	if !b.ready() {
		return contracts.ErrNotReady
	}
	msg := m.ShortMessage()
	return b.registry.Send(m.Source, msg[:])
}

// Sources returns a snapshot of the source endpoints.
func (b *Bridge) Sources() []contracts.Endpoint {
	if !b.ready() {
		return nil
	}
	return b.registry.Outputs()
}

// Destinations returns a snapshot of the destination endpoints.
func (b *Bridge) Destinations() []contracts.Endpoint {
	if !b.ready() {
		return nil
	}
	return b.registry.Inputs()
}

// Pending returns the number of received messages waiting to be dequeued.
func (b *Bridge) Pending() int {
	if b == nil {
		return 0
	}
	return b.queue.Len()
}

// Dropped returns how many received messages were discarded because the queue was full.
func (b *Bridge) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.queue.Dropped()
}

// Package queue buffers inbound MIDI events between native receive callbacks
// and the polling consumer.
package queue

import (
	"sync/atomic"

	"github.com/leandrodaf/midijack/sdk/contracts"
)

// Inbound is a bounded FIFO. Producers never block: when the queue is full the
// new event is dropped and counted. Events pushed by one producer keep their
// order; events from different producers interleave in lock order.
type Inbound struct {
	events      chan contracts.Message
	dropped     atomic.Uint64
	overflowing atomic.Bool
	logger      contracts.Logger
}

// New creates a queue holding at most capacity events.
func New(capacity int, logger contracts.Logger) *Inbound {
	if capacity <= 0 {
		capacity = contracts.DefaultQueueCapacity
	}
	return &Inbound{
		events: make(chan contracts.Message, capacity),
		logger: logger,
	}
}

// Push appends e, or drops it and returns ErrQueueFull when the queue is full.
func (q *Inbound) Push(e contracts.Message) error {
	select {
	case q.events <- e:
		q.overflowing.Store(false)
		return nil
	default:
		n := q.dropped.Add(1)
		// Warn once per overflow episode, not once per event.
		if q.logger != nil && q.overflowing.CompareAndSwap(false, true) {
			q.logger.Warn("Inbound queue full; dropping MIDI events",
				q.logger.Field().Int32("endpointID", int32(e.Source)),
				q.logger.Field().Uint64("dropped", n))
		}
		return contracts.ErrQueueFull
	}
}

// Pop removes the oldest event. It reports false when the queue is empty.
func (q *Inbound) Pop() (contracts.Message, bool) {
	select {
	case e := <-q.events:
		return e, true
	default:
		return contracts.Message{}, false
	}
}

// Len returns the number of buffered events.
func (q *Inbound) Len() int { return len(q.events) }

// Cap returns the queue capacity.
func (q *Inbound) Cap() int { return cap(q.events) }

// Dropped returns how many events were discarded because the queue was full.
func (q *Inbound) Dropped() uint64 { return q.dropped.Load() }

// Drain discards every buffered event and returns how many were removed.
func (q *Inbound) Drain() int {
	n := 0
	for {
		if _, ok := q.Pop(); !ok {
			return n
		}
		n++
	}
}

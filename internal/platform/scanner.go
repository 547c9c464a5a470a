package platform

import (
	"context"
	"sync"
	"time"

	"github.com/leandrodaf/midijack/sdk/contracts"
)

// ListFunc enumerates the devices currently present.
type ListFunc func() ([]contracts.DeviceDescriptor, error)

// Scanner turns periodic enumerations into attach and detach notifications.
type Scanner struct {
	list     ListFunc
	interval time.Duration
	logger   contracts.Logger

	mu     sync.Mutex
	cb     contracts.DeviceCallback
	known  map[string]scanned
	cancel context.CancelFunc
	done   chan struct{}
}

type scanned struct {
	desc contracts.DeviceDescriptor
	sum  uint64
}

// NewScanner creates a scanner. Devices returned by the first successful
// Rescan are treated as already known; they are reported by EnumerateDevices,
// not as attachments.
func NewScanner(list ListFunc, interval time.Duration, logger contracts.Logger) *Scanner {
	if interval <= 0 {
		interval = contracts.DefaultRescanInterval
	}
	return &Scanner{list: list, interval: interval, logger: logger}
}

// SetDeviceCallback sets the receiver of attach and detach notifications and
// starts polling if it was not running yet.
func (s *Scanner) SetDeviceCallback(cb contracts.DeviceCallback) {
	s.mu.Lock()
	s.cb = cb
	start := s.cancel == nil && cb != nil
	var ctx context.Context
	if start {
		ctx, s.cancel = context.WithCancel(context.Background())
		s.done = make(chan struct{})
	}
	s.mu.Unlock()

	if start {
		go s.loop(ctx)
	}
}

// Snapshot enumerates devices and records them as known.
func (s *Scanner) Snapshot() ([]contracts.DeviceDescriptor, error) {
	devices, err := s.list()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// Report everything found later as attached.
		if s.known == nil {
			s.known = map[string]scanned{}
		}
		return nil, err
	}
	s.known = make(map[string]scanned, len(devices))
	for _, d := range devices {
		s.known[d.ID()] = scanned{desc: d, sum: fingerprint(d)}
	}
	return devices, nil
}

// Rescan compares the current enumeration against the last one and notifies
// the callback about every difference.
func (s *Scanner) Rescan() error {
	devices, err := s.list()
	if err != nil {
		return err
	}

	s.mu.Lock()
	cb := s.cb
	first := s.known == nil
	prev := s.known
	next := make(map[string]scanned, len(devices))
	for _, d := range devices {
		next[d.ID()] = scanned{desc: d, sum: fingerprint(d)}
	}
	s.known = next
	s.mu.Unlock()

	if first || cb == nil {
		return nil
	}

	for id, old := range prev {
		if cur, ok := next[id]; !ok || cur.sum != old.sum {
			s.debug("Device detached", old.desc)
			cb.OnDeviceDetached(old.desc)
		}
	}
	for _, d := range devices {
		cur := next[d.ID()]
		if old, ok := prev[d.ID()]; !ok || old.sum != cur.sum {
			s.debug("Device attached", cur.desc)
			cb.OnDeviceAttached(cur.desc)
		}
	}
	return nil
}

// Close stops polling.
func (s *Scanner) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Scanner) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Rescan(); err != nil && s.logger != nil {
				s.logger.Warn("Device rescan failed", s.logger.Field().Error("error", err))
			}
		}
	}
}

func (s *Scanner) debug(msg string, d contracts.DeviceDescriptor) {
	if s.logger != nil {
		s.logger.Debug(msg,
			s.logger.Field().String("device", d.Name()),
			s.logger.Field().Int("ports", len(d.Ports())))
	}
}

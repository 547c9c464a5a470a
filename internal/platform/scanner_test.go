package platform

import (
	"sync"
	"testing"
	"time"

	"github.com/leandrodaf/midijack/sdk/contracts"
)

type recorder struct {
	mu       sync.Mutex
	attached []string
	detached []string
}

func (r *recorder) OnDeviceAttached(d contracts.DeviceDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = append(r.attached, d.ID())
}

func (r *recorder) OnDeviceDetached(d contracts.DeviceDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = append(r.detached, d.ID())
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attached), len(r.detached)
}

func device(id string, ports ...string) *Device {
	d := &Device{DeviceID: id, DeviceName: id}
	for i, p := range ports {
		d.AddPort(i, contracts.Output, p)
	}
	return d
}

func TestPortIDIsDeterministic(t *testing.T) {
	a := PortID("Launchkey", 0, contracts.Output, "MIDI 1")
	b := PortID("Launchkey", 0, contracts.Output, "MIDI 1")
	if a != b {
		t.Errorf("Expected equal ids, got %d and %d", a, b)
	}
	if c := PortID("Launchkey", 0, contracts.Input, "MIDI 1"); c == a {
		t.Errorf("Expected direction to change the id, both were %d", a)
	}
	if c := PortID("Launchkey", 1, contracts.Output, "MIDI 1"); c == a {
		t.Errorf("Expected port number to change the id, both were %d", a)
	}
}

func TestRescanDiffs(t *testing.T) {
	var current []contracts.DeviceDescriptor
	s := NewScanner(func() ([]contracts.DeviceDescriptor, error) { return current, nil }, time.Hour, nil)
	rec := &recorder{}
	s.cb = rec

	current = []contracts.DeviceDescriptor{device("a", "p")}
	if _, err := s.Snapshot(); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	current = []contracts.DeviceDescriptor{device("a", "p"), device("b", "p")}
	if err := s.Rescan(); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}
	if a, d := rec.counts(); a != 1 || d != 0 {
		t.Fatalf("Expected 1 attach and 0 detach, got %d and %d", a, d)
	}
	if rec.attached[0] != "b" {
		t.Errorf("Expected device b attached, got %s", rec.attached[0])
	}

	current = []contracts.DeviceDescriptor{device("b", "p")}
	_ = s.Rescan()
	if a, d := rec.counts(); a != 1 || d != 1 {
		t.Fatalf("Expected 1 attach and 1 detach, got %d and %d", a, d)
	}
	if rec.detached[0] != "a" {
		t.Errorf("Expected device a detached, got %s", rec.detached[0])
	}
}

func TestRescanReattachesChangedDevice(t *testing.T) {
	current := []contracts.DeviceDescriptor{device("a", "p")}
	s := NewScanner(func() ([]contracts.DeviceDescriptor, error) { return current, nil }, time.Hour, nil)
	rec := &recorder{}
	s.cb = rec
	_, _ = s.Snapshot()

	current = []contracts.DeviceDescriptor{device("a", "p", "q")}
	_ = s.Rescan()
	if a, d := rec.counts(); a != 1 || d != 1 {
		t.Errorf("Expected detach and attach for a changed device, got %d and %d", a, d)
	}
}

func TestScannerPolls(t *testing.T) {
	var mu sync.Mutex
	current := []contracts.DeviceDescriptor{}
	s := NewScanner(func() ([]contracts.DeviceDescriptor, error) {
		mu.Lock()
		defer mu.Unlock()
		return current, nil
	}, 5*time.Millisecond, nil)
	_, _ = s.Snapshot()

	rec := &recorder{}
	s.SetDeviceCallback(rec)
	defer s.Close()

	mu.Lock()
	current = []contracts.DeviceDescriptor{device("a", "p")}
	mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a, _ := rec.counts(); a == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Expected the poller to report the attached device")
}

func TestRescanAfterFailedSnapshotAttachesEverything(t *testing.T) {
	fail := true
	list := func() ([]contracts.DeviceDescriptor, error) {
		if fail {
			return nil, contracts.ErrUnsupportedPlatform
		}
		return []contracts.DeviceDescriptor{device("a", "p"), device("b", "p")}, nil
	}
	s := NewScanner(list, time.Hour, nil)
	rec := &recorder{}
	s.cb = rec

	if _, err := s.Snapshot(); err == nil {
		t.Fatal("Expected the snapshot to fail")
	}
	fail = false
	if err := s.Rescan(); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}
	if a, _ := rec.counts(); a != 2 {
		t.Fatalf("Expected 2 attachments, got %d", a)
	}
	if rec.attached[0] != "a" || rec.attached[1] != "b" {
		t.Errorf("Expected enumeration order, got %v", rec.attached)
	}
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leandrodaf/midijack/internal/logger"
	"github.com/leandrodaf/midijack/internal/platform/platformtest"
	"github.com/leandrodaf/midijack/internal/queue"
	"github.com/leandrodaf/midijack/sdk/contracts"
	"go.uber.org/zap"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func newRegistry(t *testing.T, p *platformtest.Platform) (*Registry, *queue.Inbound) {
	t.Helper()
	log := logger.NewFromZap(zap.NewNop())
	q := queue.New(16, log)
	r := New(p, q, log, 8)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(r.Stop)
	return r, q
}

func TestEnumeratedDevicesAreRegistered(t *testing.T) {
	p := platformtest.New()
	dev := platformtest.NewDevice("Keys", contracts.Output, contracts.Input)
	p.Plug(dev)

	r, _ := newRegistry(t, p)
	eventually(t, "endpoints", func() bool { return r.CountOutputs() == 1 && r.CountInputs() == 1 })

	out, ok := r.FindOutput(dev.PortList[0].ID)
	if !ok {
		t.Fatal("Expected output endpoint to be found")
	}
	if out.Name != dev.PortList[0].Name {
		t.Errorf("Expected name %q, got %q", dev.PortList[0].Name, out.Name)
	}
	if _, ok := r.FindInput(dev.PortList[1].ID); !ok {
		t.Error("Expected input endpoint to be found")
	}
}

func TestAttachDetachSymmetry(t *testing.T) {
	p := platformtest.New()
	r, _ := newRegistry(t, p)

	dev := platformtest.NewDevice("Pad", contracts.Output, contracts.Input)
	outID, inID := dev.PortList[0].ID, dev.PortList[1].ID

	p.Attach(dev)
	eventually(t, "attach", func() bool { return r.CountOutputs() == 1 && r.CountInputs() == 1 })
	if !p.IsOpen(outID) || !p.IsOpen(inID) {
		t.Error("Expected both ports to be open after attach")
	}

	p.Detach(dev)
	eventually(t, "detach", func() bool { return r.CountOutputs() == 0 && r.CountInputs() == 0 })

	if _, ok := r.FindOutput(outID); ok {
		t.Error("Expected output lookup to miss after detach")
	}
	if _, ok := r.FindInput(inID); ok {
		t.Error("Expected input lookup to miss after detach")
	}
	if p.IsOpen(outID) || p.IsOpen(inID) {
		t.Error("Expected ports to be closed after detach")
	}
}

func TestDetachUnknownDeviceIsNoop(t *testing.T) {
	p := platformtest.New()
	r, _ := newRegistry(t, p)

	known := platformtest.NewDevice("Known", contracts.Output)
	p.Attach(known)
	eventually(t, "attach", func() bool { return r.CountOutputs() == 1 })

	p.Detach(platformtest.NewDevice("Ghost", contracts.Output, contracts.Input))
	p.Attach(platformtest.NewDevice("Marker", contracts.Input))
	eventually(t, "marker", func() bool { return r.CountInputs() == 1 })

	if r.CountOutputs() != 1 {
		t.Errorf("Expected 1 output, got %d", r.CountOutputs())
	}
}

func TestDuplicateAttachKeepsIdentifiersUnique(t *testing.T) {
	p := platformtest.New()
	r, _ := newRegistry(t, p)

	dev := platformtest.NewDevice("Dup", contracts.Output)
	p.Attach(dev)
	p.Attach(dev)
	eventually(t, "attach", func() bool { return r.CountOutputs() == 1 })
	p.WaitOpens()

	p.Attach(platformtest.NewDevice("Marker", contracts.Input))
	eventually(t, "marker", func() bool { return r.CountInputs() == 1 })
	if r.CountOutputs() != 1 {
		t.Errorf("Expected 1 output after duplicate attach, got %d", r.CountOutputs())
	}
}

func TestFailedOpenLeavesNothingBehind(t *testing.T) {
	p := platformtest.New()
	r, _ := newRegistry(t, p)

	bad := platformtest.NewDevice("Broken", contracts.Output, contracts.Input)
	p.FailOpen(bad.ID())
	p.Attach(bad)
	p.WaitOpens()

	p.Attach(platformtest.NewDevice("Marker", contracts.Input))
	eventually(t, "marker", func() bool { return r.CountInputs() == 1 })
	if r.CountOutputs() != 0 {
		t.Errorf("Expected no outputs, got %d", r.CountOutputs())
	}
}

func TestReceivedFramesReachQueue(t *testing.T) {
	p := platformtest.New()
	r, q := newRegistry(t, p)

	dev := platformtest.NewDevice("Synth", contracts.Output)
	id := dev.PortList[0].ID
	p.Attach(dev)
	eventually(t, "attach", func() bool { return r.CountOutputs() == 1 })

	p.Deliver(id, []byte{0xF0, 0x00, 0x20, 0x76, 0x03, 0x12, 0x34, 0xF7})
	p.Deliver(id, []byte{0x90, 0x40, 0x7F})
	p.Deliver(id, []byte{0x7F})

	want := []contracts.Message{
		{Source: id, Status: 0xF0, Data: [2]byte{0x12, 0x34}},
		{Source: id, Status: 0x90, Data: [2]byte{0x40, 0x7F}},
	}
	for i, w := range want {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Event %d: queue empty", i)
		}
		if got != w {
			t.Errorf("Event %d: expected %v, got %v", i, w, got)
		}
	}
	if e, ok := q.Pop(); ok {
		t.Errorf("Expected no further events, got %v", e)
	}
}

func TestSend(t *testing.T) {
	p := platformtest.New()
	r, _ := newRegistry(t, p)

	dev := platformtest.NewDevice("Drum", contracts.Output, contracts.Input)
	outID, inID := dev.PortList[0].ID, dev.PortList[1].ID
	p.Attach(dev)
	eventually(t, "attach", func() bool { return r.CountInputs() == 1 })

	if err := r.Send(inID, []byte{0x90, 0x24, 0x64}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sent := p.Sent(inID)
	if len(sent) != 1 || string(sent[0]) != string([]byte{0x90, 0x24, 0x64}) {
		t.Errorf("Expected one 3-byte message, got %v", sent)
	}

	if err := r.Send(outID, []byte{0x90, 0, 0}); !errors.Is(err, contracts.ErrNotFound) {
		t.Errorf("Expected ErrNotFound sending to an output id, got %v", err)
	}
	if err := r.Send(12345, []byte{0x90, 0, 0}); !errors.Is(err, contracts.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestEnumerationOrder(t *testing.T) {
	p := platformtest.New()
	r, _ := newRegistry(t, p)

	a := platformtest.NewDevice("A", contracts.Output)
	p.Attach(a)
	eventually(t, "first", func() bool { return r.CountOutputs() == 1 })
	b := platformtest.NewDevice("B", contracts.Output)
	p.Attach(b)
	eventually(t, "second", func() bool { return r.CountOutputs() == 2 })

	if id, _ := r.OutputAt(0); id != a.PortList[0].ID {
		t.Errorf("Expected first output to be A, got %d", id)
	}
	if id, _ := r.OutputAt(1); id != b.PortList[0].ID {
		t.Errorf("Expected second output to be B, got %d", id)
	}
	if _, ok := r.OutputAt(2); ok {
		t.Error("Expected out of range index to miss")
	}
	if _, ok := r.OutputAt(-1); ok {
		t.Error("Expected negative index to miss")
	}
}

func TestStopClosesPorts(t *testing.T) {
	p := platformtest.New()
	log := logger.NewFromZap(zap.NewNop())
	r := New(p, queue.New(4, log), log, 4)
	dev := platformtest.NewDevice("X", contracts.Output, contracts.Input)
	p.Plug(dev)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	eventually(t, "attach", func() bool { return r.CountOutputs() == 1 && r.CountInputs() == 1 })

	r.Stop()
	if r.CountOutputs() != 0 || r.CountInputs() != 0 {
		t.Error("Expected empty collections after Stop")
	}
	if p.IsOpen(dev.PortList[0].ID) || p.IsOpen(dev.PortList[1].ID) {
		t.Error("Expected ports closed after Stop")
	}
	// Notifications after Stop must not block.
	r.OnDeviceAttached(dev)
	r.OnDeviceDetached(dev)
}

func TestDetachBeforeOpenCompletes(t *testing.T) {
	p := platformtest.New()
	r, _ := newRegistry(t, p)
	p.Hold()

	dev := platformtest.NewDevice("Late", contracts.Output, contracts.Input)
	p.Attach(dev)
	eventually(t, "open requested", func() bool { return p.PendingOpens() == 1 })

	p.Detach(dev)
	p.Release()
	eventually(t, "stale handle closed", func() bool { return p.ClosedHandles() == 1 })

	if r.CountOutputs() != 0 || r.CountInputs() != 0 {
		t.Errorf("Expected no endpoints, got %d outputs and %d inputs", r.CountOutputs(), r.CountInputs())
	}
	if p.IsOpen(dev.PortList[0].ID) || p.IsOpen(dev.PortList[1].ID) {
		t.Error("Expected no port opened for the detached device")
	}

	// The same device attached again opens normally.
	p.Attach(dev)
	eventually(t, "reattach", func() bool { return r.CountOutputs() == 1 && r.CountInputs() == 1 })
}

func TestOpenCompletingAfterStopClosesHandle(t *testing.T) {
	p := platformtest.New()
	log := logger.NewFromZap(zap.NewNop())
	r := New(p, queue.New(4, log), log, 4)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	p.Hold()

	dev := platformtest.NewDevice("Slow", contracts.Output)
	p.Attach(dev)
	eventually(t, "open requested", func() bool { return p.PendingOpens() == 1 })

	r.Stop()
	p.Release()
	p.WaitOpens()

	if p.ClosedHandles() != 1 {
		t.Errorf("Expected the late handle to be closed, %d closed", p.ClosedHandles())
	}
	if r.CountOutputs() != 0 {
		t.Errorf("Expected no outputs after Stop, got %d", r.CountOutputs())
	}
}

func TestAttachBurstLargerThanEventBuffer(t *testing.T) {
	p := platformtest.New()
	log := logger.NewFromZap(zap.NewNop())
	r := New(p, queue.New(4, log), log, 4)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(r.Stop)

	for i := 0; i < 50; i++ {
		p.Attach(platformtest.NewDevice(fmt.Sprintf("Burst %d", i), contracts.Output))
	}
	eventually(t, "burst", func() bool { return r.CountOutputs() == 50 })
}

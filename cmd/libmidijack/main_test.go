package main

import (
	"testing"
	"time"

	"github.com/leandrodaf/midijack/internal/logger"
	"github.com/leandrodaf/midijack/internal/platform/platformtest"
	"github.com/leandrodaf/midijack/sdk/contracts"
	"github.com/leandrodaf/midijack/sdk/midijack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newHost(t *testing.T, p *platformtest.Platform) (*host, *observer.ObservedLogs) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("MIDIJACK_CONFIG", "")

	core, logs := observer.New(zapcore.DebugLevel)
	h := &host{
		log:   logger.NewFromZap(zap.New(core)),
		extra: []contracts.Option{contracts.WithPlatform(p)},
	}
	t.Cleanup(h.shutdown)
	return h, logs
}

func TestStartAndShutdown(t *testing.T) {
	p := platformtest.New()
	p.Plug(platformtest.NewDevice("Keys", contracts.Output, contracts.Input))
	h, _ := newHost(t, p)

	if got := h.current().CountSources(); got != 0 {
		t.Errorf("Expected 0 sources before start, got %d", got)
	}
	if h.start() != 1 {
		t.Fatal("Expected start to succeed")
	}
	if h.start() != 1 {
		t.Error("Expected a second start to be accepted")
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.current().CountSources() != 1 || h.current().CountDestinations() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the device to open")
		}
		time.Sleep(2 * time.Millisecond)
	}

	h.shutdown()
	if h.current() != nil {
		t.Error("Expected no bridge after shutdown")
	}
	if !p.Closed() {
		t.Error("Expected the platform to be closed")
	}
	if got := h.current().SourceName(1); got != midijack.NotReadyName {
		t.Errorf("Expected %q after shutdown, got %q", midijack.NotReadyName, got)
	}
	if got := h.current().DequeueIncoming(); got != 0 {
		t.Errorf("Expected 0 after shutdown, got %d", got)
	}
}

func TestRecoverLogsPanic(t *testing.T) {
	h, logs := newHost(t, platformtest.New())

	func() {
		defer h.recover("test")
		panic("boom")
	}()

	entries := logs.FilterMessage("Recovered from panic in exported call").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 panic log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["panic"]; got != "boom" {
		t.Errorf("Expected panic value boom, got %v", got)
	}
}

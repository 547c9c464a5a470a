package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leandrodaf/midijack/sdk/contracts"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "midijack.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.ClientName != contracts.DefaultClientName {
		t.Errorf("Expected client name %q, got %q", contracts.DefaultClientName, s.ClientName)
	}
	if s.QueueCapacity != contracts.DefaultQueueCapacity {
		t.Errorf("Expected queue capacity %d, got %d", contracts.DefaultQueueCapacity, s.QueueCapacity)
	}
	if s.RescanInterval != contracts.DefaultRescanInterval {
		t.Errorf("Expected rescan interval %v, got %v", contracts.DefaultRescanInterval, s.RescanInterval)
	}
	if s.LogLevel != "info" {
		t.Errorf("Expected log level info, got %q", s.LogLevel)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
client_name: Studio
queue_capacity: 16
event_buffer: 8
log_level: debug
rescan_interval: 250ms
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.ClientName != "Studio" || s.QueueCapacity != 16 || s.EventBuffer != 8 {
		t.Errorf("Unexpected settings: %+v", s)
	}
	if s.RescanInterval != 250*time.Millisecond {
		t.Errorf("Expected 250ms rescan interval, got %v", s.RescanInterval)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "queue_capacity: 16\n")
	t.Setenv("MIDIJACK_QUEUE_CAPACITY", "32")
	t.Setenv("MIDIJACK_CLIENT_NAME", "FromEnv")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.QueueCapacity != 32 {
		t.Errorf("Expected queue capacity 32, got %d", s.QueueCapacity)
	}
	if s.ClientName != "FromEnv" {
		t.Errorf("Expected client name FromEnv, got %q", s.ClientName)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected an error for a missing config file")
	}
}

func TestOptions(t *testing.T) {
	s := &Settings{
		ClientName:     "Studio",
		QueueCapacity:  16,
		EventBuffer:    8,
		LogLevel:       "warn",
		LogFile:        "/tmp/midijack.log",
		RescanInterval: time.Second,
	}

	var opts contracts.BridgeOptions
	for _, opt := range s.Options() {
		opt(&opts)
	}
	if opts.ClientName != "Studio" || opts.QueueCapacity != 16 || opts.EventBuffer != 8 {
		t.Errorf("Unexpected options: %+v", opts)
	}
	if opts.LogLevel != contracts.WarnLevel {
		t.Errorf("Expected warn level, got %v", opts.LogLevel)
	}
	if opts.LogFilePath != "/tmp/midijack.log" {
		t.Errorf("Expected log file path, got %q", opts.LogFilePath)
	}
}

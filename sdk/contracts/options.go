package contracts

import "time"

// Default values applied when an option is not provided.
const (
	DefaultQueueCapacity  = 1024
	DefaultEventBuffer    = 64
	DefaultRescanInterval = time.Second
	DefaultClientName     = "MidiJack Client"
)

// BridgeOptions defines the configuration options for the MIDI bridge.
type BridgeOptions struct {
	Logger         Logger        // Logger for logging events and errors.
	LogLevel       LogLevel      // Level of logging to use.
	LogFilePath    string        // File path for logging if file logging is enabled.
	ClientName     string        // Name registered with the native MIDI subsystem.
	QueueCapacity  int           // Maximum number of inbound events buffered.
	EventBuffer    int           // Capacity of the registry's device event channel.
	RescanInterval time.Duration // Device poll interval for platforms without hot-plug notifications.
	Platform       Platform      // Native MIDI subsystem; chosen by GOOS when nil.
}

// Option is a function that modifies BridgeOptions.
type Option func(*BridgeOptions)

// WithLogger sets the logger for the bridge.
func WithLogger(l Logger) Option {
	return func(opts *BridgeOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the bridge.
func WithLogLevel(level LogLevel) Option {
	return func(opts *BridgeOptions) {
		opts.LogLevel = level
	}
}

// WithLogFile directs log output to the given file.
func WithLogFile(path string) Option {
	return func(opts *BridgeOptions) {
		opts.LogFilePath = path
	}
}

// WithClientName sets the client name registered with the native MIDI subsystem.
func WithClientName(name string) Option {
	return func(opts *BridgeOptions) {
		opts.ClientName = name
	}
}

// WithQueueCapacity bounds the inbound event queue.
func WithQueueCapacity(n int) Option {
	return func(opts *BridgeOptions) {
		opts.QueueCapacity = n
	}
}

// WithEventBuffer sets the capacity of the registry's device event channel.
func WithEventBuffer(n int) Option {
	return func(opts *BridgeOptions) {
		opts.EventBuffer = n
	}
}

// WithRescanInterval sets how often polling platforms look for attached and detached devices.
func WithRescanInterval(d time.Duration) Option {
	return func(opts *BridgeOptions) {
		opts.RescanInterval = d
	}
}

// WithPlatform replaces the native MIDI subsystem, mainly for tests and embedding.
func WithPlatform(p Platform) Option {
	return func(opts *BridgeOptions) {
		opts.Platform = p
	}
}

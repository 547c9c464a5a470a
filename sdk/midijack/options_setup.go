package midijack

import (
	"github.com/leandrodaf/midijack/internal/logger"
	"github.com/leandrodaf/midijack/sdk/contracts"
)

// applyDefaultOptions sets default values for BridgeOptions if not explicitly provided.
//
// opts ...contracts.Option: A variadic list of option functions that can modify BridgeOptions.
//
// Returns:
//   - contracts.BridgeOptions: A structure containing the finalized options with defaults applied.
//   - error: An error if there was an issue applying the options.
func applyDefaultOptions(opts ...contracts.Option) (contracts.BridgeOptions, error) {
	options := &contracts.BridgeOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = logger.NewZapLogger()
	}
	if options.LogLevel == 0 {
		options.LogLevel = contracts.InfoLevel
	}
	if options.ClientName == "" {
		options.ClientName = contracts.DefaultClientName
	}
	if options.QueueCapacity <= 0 {
		options.QueueCapacity = contracts.DefaultQueueCapacity
	}
	if options.EventBuffer <= 0 {
		options.EventBuffer = contracts.DefaultEventBuffer
	}
	if options.RescanInterval <= 0 {
		options.RescanInterval = contracts.DefaultRescanInterval
	}

	options.Logger.SetLevel(options.LogLevel)
	if options.LogFilePath != "" {
		options.Logger.SetDestination(contracts.FileLog, options.LogFilePath)
	}
	return *options, nil
}

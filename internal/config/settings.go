// Package config loads bridge settings from an optional YAML file and
// MIDIJACK_ environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/leandrodaf/midijack/sdk/contracts"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MIDIJACK"

// Settings mirrors the YAML keys and MIDIJACK_ variables accepted by Load.
type Settings struct {
	ClientName     string        `mapstructure:"client_name"`
	QueueCapacity  int           `mapstructure:"queue_capacity"`
	EventBuffer    int           `mapstructure:"event_buffer"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFile        string        `mapstructure:"log_file"`
	RescanInterval time.Duration `mapstructure:"rescan_interval"`
}

// Load reads settings from path, or from ./midijack.yaml when path is empty
// and the file exists. Environment variables such as MIDIJACK_QUEUE_CAPACITY
// override the file.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetDefault("client_name", contracts.DefaultClientName)
	v.SetDefault("queue_capacity", contracts.DefaultQueueCapacity)
	v.SetDefault("event_buffer", contracts.DefaultEventBuffer)
	v.SetDefault("log_level", contracts.InfoLevel.String())
	v.SetDefault("log_file", "")
	v.SetDefault("rescan_interval", contracts.DefaultRescanInterval)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		v.SetConfigName("midijack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &settings, nil
}

// Options converts the settings into bridge options.
func (s *Settings) Options() []contracts.Option {
	opts := []contracts.Option{
		contracts.WithClientName(s.ClientName),
		contracts.WithQueueCapacity(s.QueueCapacity),
		contracts.WithEventBuffer(s.EventBuffer),
		contracts.WithRescanInterval(s.RescanInterval),
		contracts.WithLogLevel(contracts.ParseLogLevel(s.LogLevel)),
	}
	if s.LogFile != "" {
		opts = append(opts, contracts.WithLogFile(s.LogFile))
	}
	return opts
}

package config

import (
	"fmt"
	"strings"
	"time"
)

var keyReplacer = strings.NewReplacer(".", "_")

// ClientConfig configures the headless client.
type ClientConfig struct {
	URL       string          `mapstructure:"url"`
	LogLevel  string          `mapstructure:"log_level"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
}

type ReconnectConfig struct {
	Auto         bool          `mapstructure:"auto"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	MaxElapsed   time.Duration `mapstructure:"max_elapsed"`
}

// LoadClient reads config/client.<CONFIG_ENV>.yaml with HUDDLE_* overrides.
func LoadClient() (*ClientConfig, error) {
	v, err := newViper("client")
	if err != nil {
		return nil, err
	}
	v.SetDefault("url", "ws://127.0.0.1:8080/ws")
	v.SetDefault("log_level", "info")
	v.SetDefault("reconnect.auto", true)
	v.SetDefault("reconnect.initial_delay", "500ms")
	v.SetDefault("reconnect.multiplier", 2.0)
	v.SetDefault("reconnect.max_delay", "10s")
	v.SetDefault("reconnect.max_elapsed", "1m")
	readFile(v)

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if cfg.Reconnect.Multiplier < 1 {
		return nil, fmt.Errorf("reconnect multiplier %v below 1", cfg.Reconnect.Multiplier)
	}
	return &cfg, nil
}

// Package config loads the relay's settings from defaults, an optional YAML
// file and CHATRELAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	StreamAddr       string           `mapstructure:"stream_addr"`
	DatagramAddr     string           `mapstructure:"datagram_addr"`
	DatagramBuffer   int              `mapstructure:"datagram_buffer"`
	Greeting         bool             `mapstructure:"greeting"`
	MaxInputLength   int              `mapstructure:"max_input_length"`
	ObserverBuffer   int              `mapstructure:"observer_buffer"`
	OutboxBuffer     int              `mapstructure:"outbox_buffer"`
	WriteTimeout     time.Duration    `mapstructure:"write_timeout"`
	HandshakeTimeout time.Duration    `mapstructure:"handshake_timeout"`
	RateLimit        RateLimitConfig  `mapstructure:"rate_limit"`
	InputLimit       InputLimitConfig `mapstructure:"input_limit"`
}

// RateLimitConfig allows Messages per Interval on each session.
type RateLimitConfig struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

// Enabled reports whether the limit applies.
func (r RateLimitConfig) Enabled() bool {
	return r.Messages > 0 && r.Interval > 0
}

// InputLimitConfig caps the bytes read per Interval from each stream
// connection.
type InputLimitConfig struct {
	Bytes    int           `mapstructure:"bytes"`
	Interval time.Duration `mapstructure:"interval"`
}

func (r InputLimitConfig) Enabled() bool {
	return r.Bytes > 0 && r.Interval > 0
}

// Defaults registers the default value of every key on v.
func Defaults(v *viper.Viper) {
	v.SetDefault("stream_addr", "0.0.0.0:9000")
	v.SetDefault("datagram_addr", "0.0.0.0:9000")
	v.SetDefault("datagram_buffer", 1024)
	v.SetDefault("greeting", true)
	v.SetDefault("max_input_length", 1024)
	v.SetDefault("observer_buffer", 64)
	v.SetDefault("outbox_buffer", 64)
	v.SetDefault("write_timeout", "10s")
	v.SetDefault("handshake_timeout", "3s")
	v.SetDefault("rate_limit.messages", 0)
	v.SetDefault("rate_limit.interval", "3s")
	v.SetDefault("input_limit.bytes", 0)
	v.SetDefault("input_limit.interval", "1m")
}

// Load reads the configuration. An empty path means defaults and environment
// only; a path that cannot be read is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("chatrelay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	Defaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks for settings the relay cannot run with.
func (c *Config) Validate() error {
	if c.StreamAddr == "" && c.DatagramAddr == "" {
		return errors.New("at least one of stream_addr and datagram_addr is required")
	}
	if c.DatagramBuffer < 0 {
		return fmt.Errorf("datagram_buffer must not be negative: %d", c.DatagramBuffer)
	}
	if c.OutboxBuffer < 0 {
		return fmt.Errorf("outbox_buffer must not be negative: %d", c.OutboxBuffer)
	}
	if c.ObserverBuffer < 0 {
		return fmt.Errorf("observer_buffer must not be negative: %d", c.ObserverBuffer)
	}
	return nil
}

// Package config handles static configuration loading using viper.
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"firestige.xyz/strix/internal/log"
)

// DefaultListenAddress is the IANA-assigned TCP port for the AVDECC proxy
// protocol (IEEE 1722.1-2013 Annex C.3).
const DefaultListenAddress = ":17221"

// Config is the top-level daemon configuration.
type Config struct {
	// Listen is the TCP address the proxy server accepts clients on.
	Listen string `mapstructure:"listen"`

	// KeepaliveInterval is how often an idle client connection receives a
	// NOP.
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`

	// Transport selects and parameterizes the raw socket backend.
	Transport TransportConfig `mapstructure:"transport"`

	Log log.Config `mapstructure:"log"`
}

// TransportConfig names a raw socket backend and carries its backend-specific
// options, decoded by the backend itself.
type TransportConfig struct {
	// Backend is the raw socket implementation: currently "afpacket".
	Backend string `mapstructure:"backend"`

	// Options is the backend-specific configuration block.
	Options map[string]any `mapstructure:"options"`
}

// DecodeOptions decodes the backend options block into the backend's own
// config struct, honoring mapstructure tags and duration strings.
func (t TransportConfig) DecodeOptions(out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("build options decoder: %w", err)
	}
	if err := decoder.Decode(t.Options); err != nil {
		return fmt.Errorf("decode %s options: %w", t.Backend, err)
	}
	return nil
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("listen", DefaultListenAddress)
	v.SetDefault("keepalive_interval", "10s")
	v.SetDefault("transport.backend", "afpacket")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the fields a running daemon depends on.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.KeepaliveInterval <= 0 {
		return fmt.Errorf("keepalive_interval must be positive, got %s", c.KeepaliveInterval)
	}
	switch c.Transport.Backend {
	case "afpacket":
	case "":
		return fmt.Errorf("transport.backend must not be empty")
	default:
		return fmt.Errorf("unknown transport backend %q", c.Transport.Backend)
	}
	return nil
}

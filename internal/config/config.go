// Package config loads and validates the service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mr-tron/base58"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the file omits a value.
const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 3000
	DefaultMaxPoints         = 10_000
	DefaultBroadcastInterval = time.Second
)

// Duration wraps time.Duration for yaml decoding of values like "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Wallet is one tracked wallet entry.
type Wallet struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

// Config is the full service configuration.
type Config struct {
	RPC struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"rpc"`

	Stream struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"stream"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	History struct {
		MaxPoints int `yaml:"max_points"`
	} `yaml:"history"`

	Broadcast struct {
		Interval Duration `yaml:"interval"`
	} `yaml:"broadcast"`

	Wallets []Wallet `yaml:"wallets"`
}

// Load reads and validates a yaml config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.History.MaxPoints == 0 {
		c.History.MaxPoints = DefaultMaxPoints
	}
	if c.Broadcast.Interval == 0 {
		c.Broadcast.Interval = Duration(DefaultBroadcastInterval)
	}
	for i := range c.Wallets {
		if c.Wallets[i].Name == "" {
			c.Wallets[i].Name = shortAddress(c.Wallets[i].Address)
		}
	}
}

// Validate checks the configuration for fatal mistakes.
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("rpc.endpoint is required")
	}
	if c.Stream.Endpoint == "" {
		return fmt.Errorf("stream.endpoint is required")
	}
	if len(c.Wallets) == 0 {
		return fmt.Errorf("at least one wallet is required")
	}
	if c.History.MaxPoints < 0 {
		return fmt.Errorf("history.max_points must be positive")
	}

	seen := make(map[string]bool, len(c.Wallets))
	for i, w := range c.Wallets {
		if w.Address == "" {
			return fmt.Errorf("wallets[%d]: address is required", i)
		}
		key, err := base58.Decode(w.Address)
		if err != nil {
			return fmt.Errorf("wallets[%d]: address %q is not base58: %w", i, w.Address, err)
		}
		if len(key) != 32 {
			return fmt.Errorf("wallets[%d]: address %q is not a 32-byte pubkey", i, w.Address)
		}
		if seen[w.Address] {
			return fmt.Errorf("wallets[%d]: duplicate address %s", i, w.Address)
		}
		seen[w.Address] = true
	}
	return nil
}

// Addresses returns the wallet addresses in config order.
func (c *Config) Addresses() []string {
	addrs := make([]string, 0, len(c.Wallets))
	for _, w := range c.Wallets {
		addrs = append(addrs, w.Address)
	}
	return addrs
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func shortAddress(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}

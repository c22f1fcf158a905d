// Package config loads runtime configuration for routerd.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for routerd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	DatabasePath  string          `yaml:"database"`
	NodeURL       string          `yaml:"node_url"`
	Router        RouterConfig    `yaml:"router"`
	Oracle        OracleConfig    `yaml:"oracle"`
	Rebalance     RebalanceConfig `yaml:"rebalance"`
	Retry         RetryConfig     `yaml:"retry"`
}

// RouterConfig identifies the hub inside the channel network.
type RouterConfig struct {
	Identifier string `yaml:"identifier"`
	Signer     string `yaml:"signer"`
}

// SignerAddress returns the parsed signer address.
func (r RouterConfig) SignerAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(r.Signer))
}

// OracleConfig selects the swap-rate source: an HTTP quote endpoint, or a
// static in-config rate table when no endpoint is configured.
type OracleConfig struct {
	Endpoint string      `yaml:"endpoint"`
	Timeout  Duration    `yaml:"timeout"`
	Rates    []RateEntry `yaml:"rates"`
}

// RateEntry is one directed static conversion rate.
type RateEntry struct {
	FromAsset string `yaml:"from_asset"`
	FromChain uint64 `yaml:"from_chain"`
	ToAsset   string `yaml:"to_asset"`
	ToChain   uint64 `yaml:"to_chain"`
	Rate      string `yaml:"rate"`
}

// RebalanceConfig lists collateral targets per channel/asset.
type RebalanceConfig struct {
	Profiles []ProfileEntry `yaml:"profiles"`
}

// ProfileEntry sets the rebalance target for an asset; an empty channel makes
// it the asset-wide default.
type ProfileEntry struct {
	Channel string `yaml:"channel"`
	Asset   string `yaml:"asset"`
	Target  string `yaml:"target"`
}

// RetryConfig tunes the drain path.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	ReplaysPerSecond float64 `yaml:"replays_per_second"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks required fields and parseability of addresses and amounts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8010"
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database path required")
	}
	if strings.TrimSpace(c.NodeURL) == "" {
		return fmt.Errorf("node_url required")
	}
	if strings.TrimSpace(c.Router.Identifier) == "" {
		return fmt.Errorf("router.identifier required")
	}
	if !common.IsHexAddress(strings.TrimSpace(c.Router.Signer)) {
		return fmt.Errorf("router.signer must be a hex address")
	}
	for i, entry := range c.Oracle.Rates {
		if !common.IsHexAddress(entry.FromAsset) || !common.IsHexAddress(entry.ToAsset) {
			return fmt.Errorf("oracle.rates[%d]: assets must be hex addresses", i)
		}
		if rate, ok := new(big.Rat).SetString(strings.TrimSpace(entry.Rate)); !ok || rate.Sign() <= 0 {
			return fmt.Errorf("oracle.rates[%d]: invalid rate %q", i, entry.Rate)
		}
	}
	for i, entry := range c.Rebalance.Profiles {
		if strings.TrimSpace(entry.Channel) != "" && !common.IsHexAddress(entry.Channel) {
			return fmt.Errorf("rebalance.profiles[%d]: channel must be a hex address", i)
		}
		if !common.IsHexAddress(entry.Asset) {
			return fmt.Errorf("rebalance.profiles[%d]: asset must be a hex address", i)
		}
		if target, ok := new(big.Int).SetString(strings.TrimSpace(entry.Target), 10); !ok || target.Sign() < 0 {
			return fmt.Errorf("rebalance.profiles[%d]: invalid target %q", i, entry.Target)
		}
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be non-negative")
	}
	if c.Retry.ReplaysPerSecond < 0 {
		return fmt.Errorf("retry.replays_per_second must be non-negative")
	}
	return nil
}

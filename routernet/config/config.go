// Package config loads routernet configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/topology"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ROUTERNET_"

// Common errors for configuration
var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Config is the full routernet configuration.
type Config struct {
	Log      LogConfig       `yaml:"log" json:"log"`
	Network  NetworkConfig   `yaml:"network" json:"network"`
	Accounts []AccountConfig `yaml:"accounts" json:"accounts"`
	Server   ServerConfig    `yaml:"server" json:"server"`
	Gateway  GatewayConfig   `yaml:"gateway" json:"gateway"`
	Metrics  MetricsConfig   `yaml:"metrics" json:"metrics"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text or json
}

// NetworkConfig describes the builder and the topology to deploy.
type NetworkConfig struct {
	Owner              string               `yaml:"owner" json:"owner"`
	Builder            string               `yaml:"builder,omitempty" json:"builder,omitempty"`
	StrictDivisibility bool                 `yaml:"strict_divisibility" json:"strict_divisibility"`
	Outputs            []string             `yaml:"outputs" json:"outputs"`
	Layers             []topology.LayerSpec `yaml:"layers" json:"layers"`
}

// AccountConfig funds an external account at startup.
type AccountConfig struct {
	Address string `yaml:"address" json:"address"`
	Balance string `yaml:"balance" json:"balance"` // e.g. "10ether", "1000"
}

// ServerConfig configures the Arrow TCP server.
type ServerConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Address     string `yaml:"address" json:"address"`
	AuthEnabled bool   `yaml:"auth_enabled" json:"auth_enabled"`
	AuthToken   string `yaml:"auth_token" json:"-"`
}

// GatewayConfig configures the ZeroMQ gateway.
type GatewayConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	ID              string        `yaml:"id" json:"id"`
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReplayTolerance time.Duration `yaml:"replay_tolerance" json:"replay_tolerance"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Address   string `yaml:"address" json:"address"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// Default returns the default configuration. Its plan is a four-output
// network of three aggregator layers under two disgregator layers.
func Default() *Config {
	owner := "0x00000000000000000000000000000000000000a0"
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Network: NetworkConfig{
			Owner: owner,
			Outputs: []string{
				"0x0000000000000000000000000000000000000b01",
				"0x0000000000000000000000000000000000000b02",
				"0x0000000000000000000000000000000000000b03",
				"0x0000000000000000000000000000000000000b04",
			},
			Layers: []topology.LayerSpec{
				{Kind: "aggregator", Multiplier: 2},
				{Kind: "aggregator", Multiplier: 2},
				{Kind: "aggregator", Multiplier: 1},
				{Kind: "disgregator", Multiplier: 4},
				{Kind: "disgregator", Multiplier: 4},
			},
		},
		Accounts: []AccountConfig{
			{Address: owner, Balance: "100ether"},
		},
		Server: ServerConfig{
			Enabled: true,
			Address: "127.0.0.1:50051",
		},
		Gateway: GatewayConfig{
			Enabled:         false,
			ID:              "gateway-1",
			Host:            "127.0.0.1",
			Port:            5555,
			ReplayTolerance: 60 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Address:   "127.0.0.1:2112",
			Namespace: "routernet",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.Parse(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Keys absent from data keep their values.
func (c *Config) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ApplyEnv overrides fields from ROUTERNET_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, EnvPrefix, name, v)
			}
			*dst = b
		}
		return nil
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("OWNER", &c.Network.Owner)
	str("BUILDER", &c.Network.Builder)
	str("SERVER_ADDRESS", &c.Server.Address)
	str("AUTH_TOKEN", &c.Server.AuthToken)
	str("GATEWAY_HOST", &c.Gateway.Host)
	str("METRICS_ADDRESS", &c.Metrics.Address)

	if v, ok := lookup(EnvPrefix + "OUTPUTS"); ok {
		c.Network.Outputs = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "GATEWAY_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sGATEWAY_PORT=%q", ErrInvalidConfig, EnvPrefix, v)
		}
		c.Gateway.Port = port
	}

	for name, dst := range map[string]*bool{
		"STRICT_DIVISIBILITY": &c.Network.StrictDivisibility,
		"SERVER_ENABLED":      &c.Server.Enabled,
		"AUTH_ENABLED":        &c.Server.AuthEnabled,
		"GATEWAY_ENABLED":     &c.Gateway.Enabled,
		"METRICS_ENABLED":     &c.Metrics.Enabled,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks addresses, amounts, the plan and the log settings.
func (c *Config) Validate() error {
	if _, err := c.OwnerAddress(); err != nil {
		return err
	}
	if _, err := c.BuilderAddress(); err != nil {
		return err
	}
	if len(c.Network.Layers) > 0 {
		plan, err := c.Plan()
		if err != nil {
			return err
		}
		if err := plan.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if _, err := c.Genesis(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.Log.Format)
	}
	if c.Gateway.Enabled && (c.Gateway.Port < 0 || c.Gateway.Port > 65535) {
		return fmt.Errorf("%w: gateway port %d", ErrInvalidConfig, c.Gateway.Port)
	}
	return nil
}

// OwnerAddress returns the builder owner.
func (c *Config) OwnerAddress() (common.Address, error) {
	return ParseAddress(c.Network.Owner)
}

// BuilderAddress returns the configured builder address, or the address
// the owner's first contract creation would get.
func (c *Config) BuilderAddress() (common.Address, error) {
	if c.Network.Builder != "" {
		return ParseAddress(c.Network.Builder)
	}
	owner, err := c.OwnerAddress()
	if err != nil {
		return common.Address{}, err
	}
	return ledger.CreateAddress(owner, 0), nil
}

// Plan converts the network section into a topology plan.
func (c *Config) Plan() (topology.Plan, error) {
	outputs := make([]common.Address, len(c.Network.Outputs))
	for i, s := range c.Network.Outputs {
		addr, err := ParseAddress(s)
		if err != nil {
			return topology.Plan{}, fmt.Errorf("output %d: %w", i, err)
		}
		outputs[i] = addr
	}
	return topology.Plan{
		Outputs: outputs,
		Layers:  append([]topology.LayerSpec(nil), c.Network.Layers...),
	}, nil
}

// Genesis is one funded account.
type Genesis struct {
	Address common.Address
	Balance *big.Int
}

// Genesis parses the accounts section.
func (c *Config) Genesis() ([]Genesis, error) {
	out := make([]Genesis, len(c.Accounts))
	for i, acct := range c.Accounts {
		addr, err := ParseAddress(acct.Address)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		amount, err := ledger.ParseAmount(acct.Balance)
		if err != nil {
			return nil, fmt.Errorf("account %d balance: %w", i, err)
		}
		out[i] = Genesis{Address: addr, Balance: amount}
	}
	return out, nil
}

// ParseAddress accepts a 0x-prefixed, non-null hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: null address", ErrInvalidAddress)
	}
	return addr, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

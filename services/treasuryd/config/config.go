package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"embervault/native/treasury"
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

// Config captures runtime configuration for treasuryd.
type Config struct {
	ListenAddress  string         `yaml:"listen"`
	DatabasePath   string         `yaml:"database"`
	AdminToken     string         `yaml:"admin_token"`
	Keeper         KeeperConfig   `yaml:"keeper"`
	Tokens         TokensConfig   `yaml:"tokens"`
	Addresses      AddressConfig  `yaml:"addresses"`
	Guard          GuardConfig    `yaml:"guard"`
	Strategy       string         `yaml:"strategy"`
	MCThresholdBps uint32         `yaml:"mc_threshold_bps"`
	Adapters       AdaptersConfig `yaml:"adapters"`
	RateLimit      RateLimit      `yaml:"rate_limit"`
}

// KeeperConfig tunes the automated execution loop.
type KeeperConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

// TokensConfig names the token symbols and their shared decimal precision.
type TokensConfig struct {
	Yield      string `yaml:"yield"`
	Governance string `yaml:"governance"`
	Stable     string `yaml:"stable"`
	LP         string `yaml:"lp"`
	Decimals   int    `yaml:"decimals"`
}

// AddressConfig carries the hex-encoded principals the engine operates with.
type AddressConfig struct {
	Controller        string `yaml:"controller"`
	Orchestrator      string `yaml:"orchestrator"`
	Treasury          string `yaml:"treasury"`
	StakerDistributor string `yaml:"staker_distributor"`
}

// GuardConfig seeds the execution guard. Amounts are decimal strings in base
// units.
type GuardConfig struct {
	MinYieldAmount       string   `yaml:"min_yield_amount"`
	MaxExecutionAmount   string   `yaml:"max_execution_amount"`
	MinExecutionInterval Duration `yaml:"min_execution_interval"`
	SlippageToleranceBps uint32   `yaml:"slippage_tolerance_bps"`
}

// AdaptersConfig points at the external staking venue, AMM router, custody,
// and the optional market oracle.
type AdaptersConfig struct {
	StakingEndpoint string   `yaml:"staking_endpoint"`
	RouterEndpoint  string   `yaml:"router_endpoint"`
	CustodyEndpoint string   `yaml:"custody_endpoint"`
	OracleEndpoint  string   `yaml:"oracle_endpoint"`
	Timeout         Duration `yaml:"timeout"`
}

// RateLimit throttles the admin API per client.
type RateLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// Load reads, env-substitutes, and validates a configuration file. The admin
// token may be supplied via TREASURYD_ADMIN_TOKEN instead of the file.
func Load(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if env := strings.TrimSpace(os.Getenv("TREASURYD_ADMIN_TOKEN")); env != "" {
		cfg.AdminToken = env
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8547"
	}
	if c.Keeper.Interval.Duration == 0 {
		c.Keeper.Interval.Duration = time.Minute
	}
	if c.Adapters.Timeout.Duration == 0 {
		c.Adapters.Timeout.Duration = 10 * time.Second
	}
	if c.Tokens.Decimals == 0 {
		c.Tokens.Decimals = 18
	}
	if c.Strategy == "" {
		c.Strategy = treasury.StrategyFixedSplit.String()
	}
	if c.MCThresholdBps == 0 {
		c.MCThresholdBps = treasury.DefaultMCThresholdBps
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 60
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
}

// Validate checks the configuration for structural problems before the
// service wires any collaborator.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("config: database path required")
	}
	if strings.TrimSpace(c.AdminToken) == "" {
		return fmt.Errorf("config: admin token required (file or TREASURYD_ADMIN_TOKEN)")
	}
	for name, endpoint := range map[string]string{
		"staking_endpoint": c.Adapters.StakingEndpoint,
		"router_endpoint":  c.Adapters.RouterEndpoint,
		"custody_endpoint": c.Adapters.CustodyEndpoint,
	} {
		if strings.TrimSpace(endpoint) == "" {
			return fmt.Errorf("config: adapters.%s required", name)
		}
	}
	if _, err := treasury.ParseStrategy(c.Strategy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Guard.SlippageToleranceBps > treasury.MaxSlippageToleranceBps {
		return fmt.Errorf("config: slippage tolerance %d exceeds cap %d", c.Guard.SlippageToleranceBps, treasury.MaxSlippageToleranceBps)
	}
	for name, raw := range map[string]string{
		"controller":   c.Addresses.Controller,
		"orchestrator": c.Addresses.Orchestrator,
		"treasury":     c.Addresses.Treasury,
	} {
		if _, err := parseAddress(raw); err != nil {
			return fmt.Errorf("config: addresses.%s: %w", name, err)
		}
	}
	if strings.TrimSpace(c.Addresses.StakerDistributor) != "" {
		if _, err := parseAddress(c.Addresses.StakerDistributor); err != nil {
			return fmt.Errorf("config: addresses.staker_distributor: %w", err)
		}
	}
	if _, err := c.MinYieldAmount(); err != nil {
		return err
	}
	if _, err := c.MaxExecutionAmount(); err != nil {
		return err
	}
	return nil
}

func parseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	if !ethcommon.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid hex address %q", raw)
	}
	return ethcommon.HexToAddress(trimmed), nil
}

func parseAmount(name, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: guard.%s: invalid amount %q", name, raw)
	}
	return amount, nil
}

// EngineConfig assembles the treasury engine configuration from the parsed
// addresses and token symbols.
func (c Config) EngineConfig() (treasury.EngineConfig, error) {
	controller, err := parseAddress(c.Addresses.Controller)
	if err != nil {
		return treasury.EngineConfig{}, err
	}
	orchestrator, err := parseAddress(c.Addresses.Orchestrator)
	if err != nil {
		return treasury.EngineConfig{}, err
	}
	treasuryAddr, err := parseAddress(c.Addresses.Treasury)
	if err != nil {
		return treasury.EngineConfig{}, err
	}
	var distributor [20]byte
	if strings.TrimSpace(c.Addresses.StakerDistributor) != "" {
		distributor, err = parseAddress(c.Addresses.StakerDistributor)
		if err != nil {
			return treasury.EngineConfig{}, err
		}
	}
	return treasury.EngineConfig{
		Controller:        controller,
		Orchestrator:      orchestrator,
		Treasury:          treasuryAddr,
		StakerDistributor: distributor,
		Tokens: treasury.TokenSet{
			Yield:      c.Tokens.Yield,
			Governance: c.Tokens.Governance,
			Stable:     c.Tokens.Stable,
			LP:         c.Tokens.LP,
		},
	}, nil
}

// ControllerAddress returns the parsed controller principal.
func (c Config) ControllerAddress() ([20]byte, error) {
	return parseAddress(c.Addresses.Controller)
}

// MinYieldAmount returns the parsed guard floor.
func (c Config) MinYieldAmount() (*big.Int, error) {
	return parseAmount("min_yield_amount", c.Guard.MinYieldAmount)
}

// MaxExecutionAmount returns the parsed per-pass cap.
func (c Config) MaxExecutionAmount() (*big.Int, error) {
	return parseAmount("max_execution_amount", c.Guard.MaxExecutionAmount)
}

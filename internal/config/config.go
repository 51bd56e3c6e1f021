package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"VaultTreasury/internal/sim"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Treasury struct {
		Owner          common.Address `yaml:"owner"`
		Address        common.Address `yaml:"address"`
		StableCoin     common.Address `yaml:"stable_coin"`
		DeadlineWindow time.Duration  `yaml:"deadline_window"`
		StateFile      string         `yaml:"state_file"`
		// InitialDeposit is minted to the owner and deposited on a fresh start.
		InitialDeposit string `yaml:"initial_deposit"`
	} `yaml:"treasury"`
	Sim      SimConfig `yaml:"sim"`
	Schedule struct {
		YieldCron      string `yaml:"yield_cron"`
		DistributeCron string `yaml:"distribute_cron"`
		AccrueCron     string `yaml:"accrue_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
	Proxy string `yaml:"proxy"`
}

// SimConfig describes the simulated chain the treasury runs against.
type SimConfig struct {
	StateFile string         `yaml:"state_file"`
	Provider  common.Address `yaml:"liquidity_provider"`
	Tokens    []TokenConfig  `yaml:"tokens"`
	Routers   []RouterConfig `yaml:"routers"`
	Pools     []PoolConfig   `yaml:"pools"`
	Vaults    []VaultConfig  `yaml:"vaults"`
}

type TokenConfig struct {
	Address  common.Address `yaml:"address"`
	Symbol   string         `yaml:"symbol"`
	Decimals uint8          `yaml:"decimals"`
}

type RouterConfig struct {
	Address common.Address `yaml:"address"`
	FeeBps  uint64         `yaml:"fee_bps"`
}

type PoolConfig struct {
	Router  common.Address `yaml:"router"`
	TokenA  common.Address `yaml:"token_a"`
	TokenB  common.Address `yaml:"token_b"`
	AmountA string         `yaml:"amount_a"`
	AmountB string         `yaml:"amount_b"`
}

// VaultConfig is a simulated vault and the weight it is registered with.
type VaultConfig struct {
	Address common.Address   `yaml:"address"`
	Want    common.Address   `yaml:"want"`
	Pool    []common.Address `yaml:"pool"`
	Router  common.Address   `yaml:"router"`
	Route0  []common.Address `yaml:"route0"`
	Route1  []common.Address `yaml:"route1"`
	APRBps  uint64           `yaml:"apr_bps"`
	Weight  string           `yaml:"weight"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("TREASURY_OWNER"); v != "" {
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("TREASURY_OWNER: invalid address %q", v)
		}
		cfg.Treasury.Owner = common.HexToAddress(v)
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("CRON_YIELD"); v != "" {
		cfg.Schedule.YieldCron = v
	}
	if v := os.Getenv("CRON_DISTRIBUTE"); v != "" {
		cfg.Schedule.DistributeCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}

	// Defaults
	if cfg.Treasury.DeadlineWindow == 0 {
		cfg.Treasury.DeadlineWindow = 20 * time.Minute
	}
	if cfg.Treasury.StateFile == "" {
		cfg.Treasury.StateFile = "data/treasury_state.json"
	}
	if cfg.Sim.StateFile == "" {
		cfg.Sim.StateFile = "data/sim_state.json"
	}
	if cfg.Sim.Provider == (common.Address{}) {
		cfg.Sim.Provider = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	}
	if cfg.Schedule.YieldCron == "" {
		cfg.Schedule.YieldCron = "0 0 8 * * *"
	}
	if cfg.Schedule.DistributeCron == "" {
		cfg.Schedule.DistributeCron = "0 0 9 * * 1"
	}
	if cfg.Schedule.AccrueCron == "" {
		cfg.Schedule.AccrueCron = "0 0 * * * *"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/vault_treasury.db"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9102"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Treasury.Owner == (common.Address{}) {
		return fmt.Errorf("treasury.owner is required")
	}
	if c.Treasury.Address == (common.Address{}) {
		return fmt.Errorf("treasury.address is required")
	}
	if c.Treasury.StableCoin == (common.Address{}) {
		return fmt.Errorf("treasury.stable_coin is required")
	}
	if c.Treasury.DeadlineWindow < 0 {
		return fmt.Errorf("treasury.deadline_window must not be negative")
	}
	if c.Treasury.InitialDeposit != "" {
		if _, err := ParseAmount(c.Treasury.InitialDeposit); err != nil {
			return fmt.Errorf("treasury.initial_deposit: %w", err)
		}
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	for i, p := range c.Sim.Pools {
		if _, err := ParseAmount(p.AmountA); err != nil {
			return fmt.Errorf("sim.pools[%d].amount_a: %w", i, err)
		}
		if _, err := ParseAmount(p.AmountB); err != nil {
			return fmt.Errorf("sim.pools[%d].amount_b: %w", i, err)
		}
	}
	for i, v := range c.Sim.Vaults {
		if v.Address == (common.Address{}) {
			return fmt.Errorf("sim.vaults[%d].address is required", i)
		}
		if v.Want == (common.Address{}) && len(v.Pool) != 2 {
			return fmt.Errorf("sim.vaults[%d]: set want or a two-token pool", i)
		}
		if _, err := ParseAmount(v.Weight); err != nil {
			return fmt.Errorf("sim.vaults[%d].weight: %w", i, err)
		}
	}
	return nil
}

// ParseAmount parses a decimal integer amount in base units. Empty means zero.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// Genesis converts the sim section into a world description. Call Validate first.
func (c *Config) Genesis() (*sim.Genesis, error) {
	g := &sim.Genesis{Provider: c.Sim.Provider}
	for _, t := range c.Sim.Tokens {
		g.Tokens = append(g.Tokens, sim.GenesisToken{Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals})
	}
	for _, r := range c.Sim.Routers {
		g.Routers = append(g.Routers, sim.GenesisRouter{Address: r.Address, FeeBps: r.FeeBps})
	}
	for _, p := range c.Sim.Pools {
		a, err := ParseAmount(p.AmountA)
		if err != nil {
			return nil, err
		}
		b, err := ParseAmount(p.AmountB)
		if err != nil {
			return nil, err
		}
		g.Pools = append(g.Pools, sim.GenesisPool{Router: p.Router, TokenA: p.TokenA, TokenB: p.TokenB, AmountA: a, AmountB: b})
	}
	for _, v := range c.Sim.Vaults {
		gv := sim.GenesisVault{
			Address: v.Address,
			Want:    v.Want,
			APRBps:  v.APRBps,
			Strategy: sim.StrategyInfo{
				Router: v.Router,
				Route0: v.Route0,
				Route1: v.Route1,
			},
		}
		if len(v.Pool) == 2 {
			gv.Pool = [2]common.Address{v.Pool[0], v.Pool[1]}
		}
		g.Vaults = append(g.Vaults, gv)
	}
	return g, nil
}

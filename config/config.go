// Package config loads the daemon's TOML configuration, creating a documented
// default file when none exists.
package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"arthchain/core/types"
)

// BoardroomConfig wires one reward boardroom. RewardToken defaults to cash;
// share-rewarding rooms are funded outside the seigniorage waterfall, so they
// carry a zero Rate.
type BoardroomConfig struct {
	Name              string `toml:"Name"`
	Kind              string `toml:"Kind"`
	StakeToken        string `toml:"StakeToken"`
	RewardToken       string `toml:"RewardToken"`
	Rate              uint64 `toml:"Rate"`
	LockPeriodSeconds uint64 `toml:"LockPeriodSeconds"`
	VestForSeconds    uint64 `toml:"VestForSeconds"`
}

// GenesisAccount seeds a ledger balance at first boot. Amounts are decimal
// integer strings in base units.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Cash    string `toml:"Cash"`
	Bond    string `toml:"Bond"`
	Share   string `toml:"Share"`
}

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	DataDir        string `toml:"DataDir"`
	StorageBackend string `toml:"StorageBackend"`
	NetworkName    string `toml:"NetworkName"`
	Environment    string `toml:"Environment"`
	LogFile        string `toml:"LogFile"`

	Owner  string `toml:"Owner"`
	Fund   string `toml:"Fund"`
	Keeper string `toml:"Keeper"`

	EpochStartTime     uint64 `toml:"EpochStartTime"`
	EpochPeriodSeconds uint64 `toml:"EpochPeriodSeconds"`

	TargetPrice              string `toml:"TargetPrice"`
	BondPurchasePrice        string `toml:"BondPurchasePrice"`
	BondRedemptionPrice      string `toml:"BondRedemptionPrice"`
	MaxSupplyIncreasePercent uint64 `toml:"MaxSupplyIncreasePercent"`
	FundAllocationRate       uint64 `toml:"FundAllocationRate"`
	BondSeigniorageRate      uint64 `toml:"BondSeigniorageRate"`
	StabilityFeeRate         uint64 `toml:"StabilityFeeRate"`

	OracleMaxAgeSeconds uint64 `toml:"OracleMaxAgeSeconds"`
	InitialPrice        string `toml:"InitialPrice"`

	VaultLockPeriodSeconds uint64 `toml:"VaultLockPeriodSeconds"`

	RateLimitPerMinute float64 `toml:"RateLimitPerMinute"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`

	Boardrooms []BoardroomConfig `toml:"Boardroom"`
	Genesis    []GenesisAccount  `toml:"Genesis"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./arth-data"
	}
	if strings.TrimSpace(c.StorageBackend) == "" {
		c.StorageBackend = "leveldb"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "arth-local"
	}
	if strings.TrimSpace(c.TargetPrice) == "" {
		c.TargetPrice = "1.00"
	}
	if strings.TrimSpace(c.BondPurchasePrice) == "" {
		c.BondPurchasePrice = "0.95"
	}
	if strings.TrimSpace(c.BondRedemptionPrice) == "" {
		c.BondRedemptionPrice = "1.05"
	}
	if c.EpochPeriodSeconds == 0 {
		c.EpochPeriodSeconds = 12 * 60 * 60
	}
	if c.MaxSupplyIncreasePercent == 0 {
		c.MaxSupplyIncreasePercent = 10
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 600
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 20
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "memory", "leveldb", "bolt":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.StorageBackend)
	}
	if c.EpochPeriodSeconds == 0 {
		return fmt.Errorf("config: EpochPeriodSeconds must be positive")
	}
	for _, field := range []struct {
		name, value string
	}{
		{"Owner", c.Owner},
		{"Keeper", c.Keeper},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		if _, err := types.ParseAddress(field.value); err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
	}
	for _, price := range []struct {
		name, value string
	}{
		{"TargetPrice", c.TargetPrice},
		{"BondPurchasePrice", c.BondPurchasePrice},
		{"BondRedemptionPrice", c.BondRedemptionPrice},
	} {
		if _, err := ParsePrice(price.value); err != nil {
			return fmt.Errorf("config: %s: %w", price.name, err)
		}
	}
	if c.FundAllocationRate > 100 || c.BondSeigniorageRate > 100 || c.StabilityFeeRate > 100 {
		return fmt.Errorf("config: allocation rates are whole percentages at most 100")
	}
	total := uint64(0)
	seen := make(map[string]bool, len(c.Boardrooms))
	for _, room := range c.Boardrooms {
		if strings.TrimSpace(room.Name) == "" {
			return fmt.Errorf("config: boardroom without a name")
		}
		if seen[room.Name] {
			return fmt.Errorf("config: duplicate boardroom %q", room.Name)
		}
		seen[room.Name] = true
		switch room.Kind {
		case "custodial", "vault":
		default:
			return fmt.Errorf("config: boardroom %q has unknown kind %q", room.Name, room.Kind)
		}
		switch room.StakeToken {
		case "cash", "share":
		case "":
			if room.Kind == "custodial" {
				return fmt.Errorf("config: boardroom %q needs a stake token", room.Name)
			}
		default:
			return fmt.Errorf("config: boardroom %q has unknown stake token %q", room.Name, room.StakeToken)
		}
		switch room.RewardToken {
		case "", "cash":
		case "share":
			if room.Rate > 0 {
				return fmt.Errorf("config: boardroom %q rewards share and cannot take a seigniorage rate", room.Name)
			}
		default:
			return fmt.Errorf("config: boardroom %q has unknown reward token %q", room.Name, room.RewardToken)
		}
		if room.VestForSeconds > c.EpochPeriodSeconds {
			return fmt.Errorf("config: boardroom %q vesting longer than the epoch period", room.Name)
		}
		total += room.Rate
	}
	if total > 100 {
		return fmt.Errorf("config: boardroom rates sum to more than 100")
	}
	for _, account := range c.Genesis {
		if _, err := types.ParseAddress(account.Address); err != nil {
			return fmt.Errorf("config: genesis: %w", err)
		}
		for _, amount := range []string{account.Cash, account.Bond, account.Share} {
			if strings.TrimSpace(amount) == "" {
				continue
			}
			if _, ok := new(big.Int).SetString(amount, 10); !ok {
				return fmt.Errorf("config: genesis amount %q is not a decimal integer", amount)
			}
		}
	}
	return nil
}

// ParsePrice converts a decimal price string such as "1.05" into its
// 1e18-scaled integer representation.
func ParsePrice(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("empty price")
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 18 {
		return nil, fmt.Errorf("price %q has more than 18 decimal places", s)
	}
	digits := whole + frac + strings.Repeat("0", 18-len(frac))
	price, ok := new(big.Int).SetString(digits, 10)
	if !ok || price.Sign() < 0 {
		return nil, fmt.Errorf("invalid price %q", s)
	}
	return price, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		DataDir:        "./arth-data",
		StorageBackend: "leveldb",
		NetworkName:    "arth-local",
		Boardrooms: []BoardroomConfig{
			{Name: "arth", Kind: "custodial", StakeToken: "share", Rate: 80, LockPeriodSeconds: 5 * 24 * 60 * 60},
		},
	}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

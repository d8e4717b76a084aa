package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.00", "1000000000000000000"},
		{"0.95", "950000000000000000"},
		{"1.05", "1050000000000000000"},
		{"2", "2000000000000000000"},
		{".5", "500000000000000000"},
	}
	for _, tc := range cases {
		got, err := ParsePrice(tc.in)
		if err != nil {
			t.Fatalf("ParsePrice(%q): %v", tc.in, err)
		}
		want, _ := new(big.Int).SetString(tc.want, 10)
		if got.Cmp(want) != 0 {
			t.Fatalf("ParsePrice(%q) = %s, want %s", tc.in, got, want)
		}
	}

	for _, bad := range []string{"", "abc", "1.0000000000000000001", "1.2.3"} {
		if _, err := ParsePrice(bad); err == nil {
			t.Fatalf("ParsePrice(%q) accepted", bad)
		}
	}
}

func validConfig() *Config {
	cfg := &Config{
		Owner:  "0x00000000000000000000000000000000000000ab",
		Keeper: "0x00000000000000000000000000000000000000ac",
		Boardrooms: []BoardroomConfig{
			{Name: "arth", Kind: "custodial", StakeToken: "share", Rate: 80},
			{Name: "arth-liquidity", Kind: "vault", Rate: 20},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	shareRewards := validConfig()
	shareRewards.Boardrooms[0].RewardToken = "cash"
	shareRewards.Boardrooms[1].RewardToken = "share"
	shareRewards.Boardrooms[1].Rate = 0
	if err := shareRewards.Validate(); err != nil {
		t.Fatalf("share-reward boardroom rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.StorageBackend = "sqlite" }},
		{"bad owner address", func(c *Config) { c.Owner = "0x12" }},
		{"bad price", func(c *Config) { c.TargetPrice = "one" }},
		{"rate over 100", func(c *Config) { c.FundAllocationRate = 101 }},
		{"unknown boardroom kind", func(c *Config) { c.Boardrooms[0].Kind = "margin" }},
		{"custodial without stake", func(c *Config) { c.Boardrooms[0].StakeToken = "" }},
		{"unknown stake token", func(c *Config) { c.Boardrooms[0].StakeToken = "bond" }},
		{"unknown reward token", func(c *Config) { c.Boardrooms[0].RewardToken = "bond" }},
		{"share rewards with seigniorage rate", func(c *Config) { c.Boardrooms[0].RewardToken = "share" }},
		{"duplicate boardroom", func(c *Config) { c.Boardrooms[1].Name = "arth" }},
		{"boardroom rates over 100", func(c *Config) { c.Boardrooms[0].Rate = 90 }},
		{"vesting beyond epoch", func(c *Config) { c.Boardrooms[0].VestForSeconds = c.EpochPeriodSeconds + 1 }},
		{"bad genesis address", func(c *Config) { c.Genesis = []GenesisAccount{{Address: "zz"}} }},
		{"bad genesis amount", func(c *Config) {
			c.Genesis = []GenesisAccount{{Address: "0x0000000000000000000000000000000000000001", Cash: "12.5"}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if cfg.StorageBackend != "leveldb" || cfg.RPCAddress != ":8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Boardrooms) != 1 || cfg.Boardrooms[0].Name != "arth" {
		t.Fatalf("unexpected default boardrooms: %+v", cfg.Boardrooms)
	}

	// A second load round-trips the file it just wrote.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.EpochPeriodSeconds != cfg.EpochPeriodSeconds {
		t.Fatalf("reload mismatch: %d != %d", again.EpochPeriodSeconds, cfg.EpochPeriodSeconds)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("StorageBackend = \"sqlite\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("invalid file accepted")
	}
}

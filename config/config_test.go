package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.OwnerAddress = "0x000000000000000000000000000000000000000a"
	cfg.CreatorAddress = "0x000000000000000000000000000000000000000c"
	cfg.PlatformAddress = "0x000000000000000000000000000000000000000f"
	return cfg
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saled.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ListenAddress != ":8545" {
		t.Fatalf("unexpected default listen address: %s", cfg.ListenAddress)
	}
	if cfg.ReserveRatioPPM != 200_000 {
		t.Fatalf("unexpected default reserve ratio: %d", cfg.ReserveRatioPPM)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
}

func TestLoadReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saled.toml")
	contents := strings.Join([]string{
		`ListenAddress = ":9000"`,
		`ReserveRatioPPM = 500000`,
		`OwnerAddress = "0x000000000000000000000000000000000000000a"`,
		`CreatorAddress = "0x000000000000000000000000000000000000000c"`,
		`PlatformAddress = "0x000000000000000000000000000000000000000f"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("listen address not read: %s", cfg.ListenAddress)
	}
	if cfg.ReserveRatioPPM != 500_000 {
		t.Fatalf("reserve ratio not read: %d", cfg.ReserveRatioPPM)
	}
	// Unset keys keep their defaults.
	if cfg.RateLimitBurst != 30 {
		t.Fatalf("default burst lost: %d", cfg.RateLimitBurst)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen address", func(c *Config) { c.ListenAddress = "" }},
		{"zero reserve ratio", func(c *Config) { c.ReserveRatioPPM = 0 }},
		{"reserve ratio above scale", func(c *Config) { c.ReserveRatioPPM = 1_000_001 }},
		{"missing owner", func(c *Config) { c.OwnerAddress = "" }},
		{"zero creator", func(c *Config) {
			c.CreatorAddress = "0x0000000000000000000000000000000000000000"
		}},
		{"malformed platform", func(c *Config) { c.PlatformAddress = "not-an-address" }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

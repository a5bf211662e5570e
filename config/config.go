package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"curvesale/core/types"
)

// Config carries the saled service configuration.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Env           string `toml:"Env"`

	LogFile      string `toml:"LogFile"`
	LogMaxSizeMB int    `toml:"LogMaxSizeMB"`
	LogMaxAge    int    `toml:"LogMaxAge"`

	ReserveRatioPPM uint64 `toml:"ReserveRatioPPM"`
	OwnerAddress    string `toml:"OwnerAddress"`
	CreatorAddress  string `toml:"CreatorAddress"`
	PlatformAddress string `toml:"PlatformAddress"`

	RateLimitPerMinute float64 `toml:"RateLimitPerMinute"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress:      ":8545",
		DataDir:            "./saled-data",
		LogMaxSizeMB:       10,
		LogMaxAge:          28,
		ReserveRatioPPM:    200_000,
		RateLimitPerMinute: 600,
		RateLimitBurst:     30,
	}
}

// Load reads the configuration from path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}
	return cfg, nil
}

// Validate applies the sale initialization rules: all stakeholder addresses
// must parse to non-zero values and the reserve ratio must fall in
// (0, 1_000_000].
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir required")
	}
	if c.ReserveRatioPPM == 0 || c.ReserveRatioPPM > 1_000_000 {
		return fmt.Errorf("ReserveRatioPPM %d outside (0, 1000000]", c.ReserveRatioPPM)
	}
	for name, raw := range map[string]string{
		"OwnerAddress":    c.OwnerAddress,
		"CreatorAddress":  c.CreatorAddress,
		"PlatformAddress": c.PlatformAddress,
	} {
		addr, err := types.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if addr.IsZero() {
			return fmt.Errorf("%s must be non-zero", name)
		}
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RateLimitPerMinute must not be negative")
	}
	return nil
}

// Owner returns the parsed owner address. Validate must have succeeded.
func (c *Config) Owner() types.Address {
	addr, _ := types.ParseAddress(c.OwnerAddress)
	return addr
}

// Creator returns the parsed fund-creator address.
func (c *Config) Creator() types.Address {
	addr, _ := types.ParseAddress(c.CreatorAddress)
	return addr
}

// Platform returns the parsed platform address.
func (c *Config) Platform() types.Address {
	addr, _ := types.ParseAddress(c.PlatformAddress)
	return addr
}

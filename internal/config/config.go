// Package config loads the engine configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantfall/tradegate/internal/audit"
	"github.com/quantfall/tradegate/internal/domain/gates"
	"github.com/quantfall/tradegate/internal/domain/regime"
)

// Config is the full engine configuration.
type Config struct {
	Gates  gates.Config  `yaml:"gates"`
	Regime regime.Config `yaml:"regime"`
	Audit  audit.Config  `yaml:"audit"`

	Feed struct {
		URL              string  `yaml:"url"`
		HeartbeatSeconds int     `yaml:"heartbeat_seconds"`
		VenueRPS         float64 `yaml:"venue_rps"`
		VenueBurst       int     `yaml:"venue_burst"`
	} `yaml:"feed"`

	Redis struct {
		Addr       string `yaml:"addr"`
		DB         int    `yaml:"db"`
		TTLSeconds int    `yaml:"ttl_seconds"`
	} `yaml:"redis"`

	Postgres struct {
		DSN            string `yaml:"dsn"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"postgres"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
}

// Default returns the reference configuration.
func Default() *Config {
	c := &Config{
		Gates:  gates.DefaultConfig(),
		Regime: regime.DefaultConfig(),
		Audit:  audit.DefaultConfig(),
	}
	c.Feed.HeartbeatSeconds = 5
	c.Feed.VenueRPS = 10
	c.Feed.VenueBurst = 20
	c.Redis.TTLSeconds = 30
	c.Postgres.TimeoutSeconds = 5
	c.HTTP.Addr = ":8080"
	return c
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	c := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations that would silently disable limits.
func (c *Config) Validate() error {
	if c.Gates.MaxPositionSizePct <= 0 || c.Gates.MaxPositionSizePct > 1 {
		return fmt.Errorf("gates.max_position_size_pct %.3f outside (0, 1]", c.Gates.MaxPositionSizePct)
	}
	if c.Gates.DailyLossLimitPct <= 0 {
		return fmt.Errorf("gates.daily_loss_limit_pct must be positive, got %.3f", c.Gates.DailyLossLimitPct)
	}
	if c.Gates.MaxOpenPositions <= 0 {
		return fmt.Errorf("gates.max_open_positions must be positive, got %d", c.Gates.MaxOpenPositions)
	}
	if c.Gates.MinAgreeingModels < 1 {
		return fmt.Errorf("gates.min_agreeing_models must be at least 1, got %d", c.Gates.MinAgreeingModels)
	}
	if c.Audit.RollingWindow <= 0 {
		return fmt.Errorf("audit.rolling_window must be positive, got %d", c.Audit.RollingWindow)
	}
	return nil
}

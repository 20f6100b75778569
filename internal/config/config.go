// Package config loads server configuration from an optional TOML file with
// environment variable overrides. The API key is a secret and comes from the
// environment only.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config is the process configuration.
type Config struct {
	Port              int    `toml:"port"`
	DBPath            string `toml:"db_path"`
	TickIntervalHours int    `toml:"tick_interval_hours"`
	MaxPlayers        int    `toml:"max_players_per_server"`

	// Not in the file: ANTHROPIC_API_KEY.
	APIKey string `toml:"-"`
}

// Load reads the TOML file at path (if non-empty and present), then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:              8080,
		DBPath:            "data/polis.db",
		TickIntervalHours: 24,
		MaxPlayers:        20,
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = n
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TICK_INTERVAL_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid TICK_INTERVAL_HOURS %q", v)
		}
		cfg.TickIntervalHours = n
	}
	if v := os.Getenv("MAX_PLAYERS_PER_SERVER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid MAX_PLAYERS_PER_SERVER %q", v)
		}
		cfg.MaxPlayers = n
	}
	return cfg, nil
}

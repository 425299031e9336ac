// Package config loads the daemon configuration: defaults, then an optional
// TOML file, then SYNCD_* environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config is the daemon configuration.
type Config struct {
	ListenAddr string `toml:"listen_addr" env:"SYNCD_LISTEN_ADDR"`
	DataDir    string `toml:"data_dir" env:"SYNCD_DATA_DIR"`

	RateLimitPerMinute int `toml:"rate_limit_per_minute" env:"SYNCD_RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst     int `toml:"rate_limit_burst" env:"SYNCD_RATE_LIMIT_BURST"`

	// Cache TTL classes: short for high-churn counters, medium for chat
	// data, long for reference data.
	CacheShortTTLSeconds  int `toml:"cache_short_ttl_seconds" env:"SYNCD_CACHE_SHORT_TTL_SECONDS"`
	CacheMediumTTLSeconds int `toml:"cache_medium_ttl_seconds" env:"SYNCD_CACHE_MEDIUM_TTL_SECONDS"`
	CacheLongTTLSeconds   int `toml:"cache_long_ttl_seconds" env:"SYNCD_CACHE_LONG_TTL_SECONDS"`
	CacheMaxEntries       int `toml:"cache_max_entries" env:"SYNCD_CACHE_MAX_ENTRIES"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		ListenAddr:            "127.0.0.1:8480",
		DataDir:               filepath.Join(home, ".syncd"),
		RateLimitPerMinute:    120,
		RateLimitBurst:        30,
		CacheShortTTLSeconds:  60,
		CacheMediumTTLSeconds: 300,
		CacheLongTTLSeconds:   3600,
		CacheMaxEntries:       4096,
	}
}

// Load builds the effective configuration. A missing file is not an error;
// a present but unparsable one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// DBPath returns the sqlite database path under the data dir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "syncd.db")
}

// LogPath returns the daemon log file path under the data dir.
func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "syncd.log")
}

// ShortTTL returns the short cache class TTL.
func (c Config) ShortTTL() time.Duration {
	return time.Duration(c.CacheShortTTLSeconds) * time.Second
}

// MediumTTL returns the medium cache class TTL.
func (c Config) MediumTTL() time.Duration {
	return time.Duration(c.CacheMediumTTLSeconds) * time.Second
}

// LongTTL returns the long cache class TTL.
func (c Config) LongTTL() time.Duration {
	return time.Duration(c.CacheLongTTLSeconds) * time.Second
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hilo/internal/game"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config holds every server setting. Load reads it from YAML and then lets
// environment variables override deployment-specific values.
type Config struct {
	Server struct {
		Port            string   `yaml:"port"`
		CORSOrigins     []string `yaml:"cors_origins"`
		RateLimit       int      `yaml:"rate_limit"`
		RateWindow      string   `yaml:"rate_window"`
		ShutdownTimeout string   `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Store struct {
		Driver string `yaml:"driver"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"store"`

	Game struct {
		DefaultMaxPlayers int    `yaml:"default_max_players"`
		MaxPlayersCap     int    `yaml:"max_players_cap"`
		RoundDuration     string `yaml:"round_duration"`
		IdleTTL           string `yaml:"idle_ttl"`
		ExpireSchedule    string `yaml:"expire_schedule"`
		PruneSchedule     string `yaml:"prune_schedule"`
	} `yaml:"game"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// Default returns a configuration that runs a single-node server on SQLite.
func Default() *Config {
	var c Config
	c.Server.Port = "8088"
	c.Server.RateLimit = 20
	c.Server.RateWindow = "1s"
	c.Server.ShutdownTimeout = "10s"

	c.Store.Driver = DriverSQLite
	c.Store.SQLite.Path = "hilo.db"
	c.Store.Redis.Addr = "localhost:6379"

	c.Game.DefaultMaxPlayers = 10
	c.Game.MaxPlayersCap = 10
	c.Game.RoundDuration = "300s"
	c.Game.IdleTTL = "24h"
	c.Game.ExpireSchedule = "@every 10s"
	c.Game.PruneSchedule = "@every 1h"

	c.Logging.Level = "info"
	c.Logging.MaxSizeMB = 10
	c.Logging.MaxBackups = 3
	c.Logging.MaxAgeDays = 28
	return &c
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Game.DefaultMaxPlayers < game.MinPlayers {
		return fmt.Errorf("default max players must be at least %d, got %d", game.MinPlayers, c.Game.DefaultMaxPlayers)
	}
	if c.Game.MaxPlayersCap < c.Game.DefaultMaxPlayers {
		return fmt.Errorf("max players cap %d is below the default max players %d",
			c.Game.MaxPlayersCap, c.Game.DefaultMaxPlayers)
	}

	durations := map[string]string{
		"server.rate_window":      c.Server.RateWindow,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"game.round_duration":     c.Game.RoundDuration,
		"game.idle_ttl":           c.Game.IdleTTL,
	}
	for name, v := range durations {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// Durations are validated by Validate, so the accessors ignore parse errors.

func (c *Config) RateWindow() time.Duration      { return mustDuration(c.Server.RateWindow) }
func (c *Config) ShutdownTimeout() time.Duration { return mustDuration(c.Server.ShutdownTimeout) }
func (c *Config) RoundDuration() time.Duration   { return mustDuration(c.Game.RoundDuration) }
func (c *Config) IdleTTL() time.Duration         { return mustDuration(c.Game.IdleTTL) }

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// overrideWithEnv lets the environment take precedence over the file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("HILO_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("HILO_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("HILO_SQLITE_PATH"); v != "" {
		cfg.Store.SQLite.Path = v
	}
	if v := os.Getenv("HILO_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("HILO_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("HILO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

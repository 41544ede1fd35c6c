package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// EnvPrefix marks the environment variables that override the config.
// Nested keys use a double underscore: WALKSCORE_OVERPASS__URL is overpass.url.
const EnvPrefix = "WALKSCORE_"

type Config struct {
	Env      string
	HTTPAddr string
	Overpass OverpassConfig
	Postgres PostgresConfig
	Cache    CacheConfig
	Tiles    TilesConfig
	Scores   ScoresConfig
}

type OverpassConfig struct {
	URL         string
	Timeout     time.Duration
	MaxParallel int
}

// PostgresConfig: an empty URL disables hazard lookups and score recording.
type PostgresConfig struct {
	URL     string
	Migrate bool
}

type CacheConfig struct {
	Size      int
	TTL       time.Duration
	Precision int
}

type TilesConfig struct {
	URLTemplate   string
	Timeout       time.Duration
	StrictFilters bool
}

type ScoresConfig struct {
	Record bool
}

var defaults = map[string]interface{}{
	"app.env":               "production",
	"http.addr":             ":8080",
	"overpass.url":          "https://overpass-api.de/api/interpreter",
	"overpass.timeout":      "30s",
	"overpass.max_parallel": 2,
	"postgres.url":          "",
	"postgres.migrate":      true,
	"cache.size":            512,
	"cache.ttl":             "1h",
	"cache.precision":       6,
	"tiles.url_template":    "",
	"tiles.timeout":         "10s",
	"tiles.strict_filters":  false,
	"scores.record":         false,
}

// Load reads defaults, then the optional YAML file at path, then the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{
		Env:      k.String("app.env"),
		HTTPAddr: k.String("http.addr"),
		Overpass: OverpassConfig{
			URL:         k.String("overpass.url"),
			Timeout:     k.Duration("overpass.timeout"),
			MaxParallel: k.Int("overpass.max_parallel"),
		},
		Postgres: PostgresConfig{
			URL:     k.String("postgres.url"),
			Migrate: k.Bool("postgres.migrate"),
		},
		Cache: CacheConfig{
			Size:      k.Int("cache.size"),
			TTL:       k.Duration("cache.ttl"),
			Precision: k.Int("cache.precision"),
		},
		Tiles: TilesConfig{
			URLTemplate:   k.String("tiles.url_template"),
			Timeout:       k.Duration("tiles.timeout"),
			StrictFilters: k.Bool("tiles.strict_filters"),
		},
		Scores: ScoresConfig{
			Record: k.Bool("scores.record"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func (c *Config) Validate() error {
	if c.Overpass.URL == "" {
		return fmt.Errorf("overpass.url is required")
	}
	if c.Overpass.Timeout <= 0 {
		return fmt.Errorf("overpass.timeout must be positive")
	}
	if c.Cache.Precision < 0 || c.Cache.Precision > 10 {
		return fmt.Errorf("cache.precision must be between 0 and 10, got %d", c.Cache.Precision)
	}
	if c.Scores.Record && c.Postgres.URL == "" {
		return fmt.Errorf("scores.record needs postgres.url")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

// NewLogger builds a console logger for development and JSON otherwise.
func (c *Config) NewLogger() (*zap.Logger, error) {
	if c.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

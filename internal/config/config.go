// Package config loads the tablemap configuration: a YAML file with
// defaults, an optional .env file, then TABLEMAP_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	DataDir string        `yaml:"data_dir" env:"DATA_DIR"`
	Plugin  string        `yaml:"plugin" env:"PLUGIN"`
	Dataset string        `yaml:"dataset" env:"DATASET"`
	Geocode GeocodeConfig `yaml:"geocode" envPrefix:"GEOCODE_"`
	Map     MapConfig     `yaml:"map" envPrefix:"MAP_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	DuckDB  DuckDBConfig  `yaml:"duckdb" envPrefix:"DUCKDB_"`
}

// GeocodeConfig selects and tunes the geocoding provider.
type GeocodeConfig struct {
	Provider  string      `yaml:"provider" env:"PROVIDER"` // "google", "nominatim"
	Key       string      `yaml:"key" env:"KEY"`
	Endpoint  string      `yaml:"endpoint" env:"ENDPOINT"`
	Nominatim string      `yaml:"nominatim_server" env:"NOMINATIM_SERVER"`
	Language  string      `yaml:"language" env:"LANGUAGE"`
	Cache     CacheConfig `yaml:"cache" envPrefix:"CACHE_"`
	RateLimit RetryConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Transient RetryConfig `yaml:"transient" envPrefix:"TRANSIENT_"`
}

// CacheConfig configures the sqlite geocode cache.
type CacheConfig struct {
	Enabled bool     `yaml:"enabled" env:"ENABLED"`
	Path    string   `yaml:"path" env:"PATH"`
	MaxAge  Duration `yaml:"max_age" env:"MAX_AGE"`
}

// RetryConfig is one retry policy. MaxAttempts 0 retries without limit.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	Delay       Duration `yaml:"delay" env:"DELAY"`
}

// MapConfig holds map presentation settings.
type MapConfig struct {
	// TileURLs maps a locale prefix to an XYZ tile template; "default"
	// applies to every other locale.
	TileURLs      map[string]string `yaml:"tile_urls" env:"TILE_URLS"`
	ClusterRadius float64           `yaml:"cluster_radius" env:"CLUSTER_RADIUS"`
	ClusterZoom   int               `yaml:"cluster_zoom" env:"CLUSTER_ZOOM"`
	Touch         bool              `yaml:"touch" env:"TOUCH"`
	DefaultZoom   int               `yaml:"default_zoom" env:"DEFAULT_ZOOM"`
	// CenterSample is how many addresses are geocoded to find the initial
	// center when nothing better is known.
	CenterSample int `yaml:"center_sample" env:"CENTER_SAMPLE"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // "tint", "text", "json"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
	// FragmentsDir overrides the embedded HTML fragments.
	FragmentsDir string `yaml:"fragments_dir,omitempty" env:"FRAGMENTS_DIR"`
}

// DuckDBConfig configures the host dataset store.
type DuckDBConfig struct {
	Name       string   `yaml:"name" env:"NAME"`
	InMemory   bool     `yaml:"in_memory" env:"IN_MEMORY"`
	Extensions []string `yaml:"extensions,omitempty" env:"EXTENSIONS"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: ".data",
		Plugin:  "map-en",
		Dataset: "sample",
		Geocode: GeocodeConfig{
			Provider:  "nominatim",
			Nominatim: "https://nominatim.openstreetmap.org",
			Language:  "en",
			Cache: CacheConfig{
				Enabled: true,
				Path:    "geocode.sqlite",
				MaxAge:  Duration(30 * Day),
			},
			RateLimit: RetryConfig{MaxAttempts: 3, Delay: Duration(time.Second)},
			Transient: RetryConfig{MaxAttempts: 0, Delay: Duration(time.Second)},
		},
		Map: MapConfig{
			TileURLs: map[string]string{
				"default": "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
				"zh":      "https://webrd01.is.autonavi.com/appmaptile?lang=zh_cn&size=1&scale=1&style=8&x={x}&y={y}&z={z}",
			},
			ClusterRadius: 80,
			ClusterZoom:   10,
			DefaultZoom:   10,
			CenterSample:  5,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "tint",
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8086,
		},
		DuckDB: DuckDBConfig{
			Name: "tablemap",
		},
	}
}

// Load reads path over the defaults, then applies envFile (if it exists)
// and the environment. A missing config file is not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "TABLEMAP_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	switch c.Geocode.Provider {
	case "google", "nominatim":
	default:
		return fmt.Errorf("unknown geocode provider %q", c.Geocode.Provider)
	}
	if c.Plugin == "" {
		return errors.New("plugin name is required")
	}
	if c.Geocode.RateLimit.MaxAttempts < 0 || c.Geocode.Transient.MaxAttempts < 0 {
		return errors.New("retry max_attempts must not be negative")
	}
	return nil
}

// TileURL returns the tile template for locale, matching on its language
// prefix ("zh-cn" uses "zh").
func (m MapConfig) TileURL(locale string) string {
	locale = strings.ToLower(locale)
	if u, ok := m.TileURLs[locale]; ok {
		return u
	}
	if lang, _, ok := strings.Cut(locale, "-"); ok {
		if u, ok := m.TileURLs[lang]; ok {
			return u
		}
	}
	return m.TileURLs["default"]
}

// CachePath resolves the geocode cache path against the data directory.
func (c *Config) CachePath() string {
	p := c.Geocode.Cache.Path
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

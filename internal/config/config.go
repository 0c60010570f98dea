// Package config loads entq settings from an optional YAML file overlaid
// by ENTQ_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: ENTQ_STORE_BACKEND sets
// store.backend.
const EnvPrefix = "ENTQ"

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMinio  = "minio"
)

// Config is the complete entq configuration.
type Config struct {
	Store    StoreConfig   `mapstructure:"store"`
	Schema   SchemaConfig  `mapstructure:"schema"`
	Cache    CacheConfig   `mapstructure:"cache"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	LogLevel string        `mapstructure:"log_level"`
}

// StoreConfig selects and configures the entity store.
type StoreConfig struct {
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	PageSize    int    `mapstructure:"page_size"`
	Endpoint    string `mapstructure:"endpoint"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	Bucket      string `mapstructure:"bucket"`
	UseSSL      bool   `mapstructure:"use_ssl"`
	TagIndexing bool   `mapstructure:"tag_indexing"`
}

// SchemaConfig names the CUE file declaring the entity schema.
type SchemaConfig struct {
	File   string `mapstructure:"file"`
	Entity string `mapstructure:"entity"`
}

// CacheConfig enables the Redis body cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// defaults registers every key so that environment overrides apply to
// keys absent from the config file.
var defaults = map[string]any{
	"store.backend":        BackendMemory,
	"store.path":           "entq.db",
	"store.page_size":      0,
	"store.endpoint":       "",
	"store.access_key":     "",
	"store.secret_key":     "",
	"store.bucket":         "",
	"store.use_ssl":        false,
	"store.tag_indexing":   true,
	"schema.file":          "",
	"schema.entity":        "",
	"cache.redis_addr":     "",
	"cache.redis_password": "",
	"cache.redis_db":       0,
	"cache.ttl":            5 * time.Minute,
	"metrics.addr":         "",
	"log_level":            "info",
}

// Load reads path (skipped when empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects unknown backends and missing required settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite backend"))
		}
	case BackendMinio:
		if c.Store.Endpoint == "" {
			errs = append(errs, errors.New("store.endpoint is required for the minio backend"))
		}
		if c.Store.Bucket == "" {
			errs = append(errs, errors.New("store.bucket is required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q (want memory, sqlite or minio)", c.Store.Backend))
	}

	if c.Store.PageSize < 0 {
		errs = append(errs, fmt.Errorf("store.page_size must not be negative, got %d", c.Store.PageSize))
	}
	if c.Cache.RedisAddr != "" && c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive when the cache is enabled, got %s", c.Cache.TTL))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

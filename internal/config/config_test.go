package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.True(t, cfg.Store.TagIndexing, "tag indexing defaults to on")
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: sqlite
  path: /tmp/entities.db
  page_size: 50
  tag_indexing: false
schema:
  file: schemas/orders.cue
  entity: Order
cache:
  redis_addr: localhost:6379
  ttl: 30s
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/tmp/entities.db", cfg.Store.Path)
	assert.Equal(t, 50, cfg.Store.PageSize)
	assert.False(t, cfg.Store.TagIndexing)
	assert.Equal(t, "schemas/orders.cue", cfg.Schema.File)
	assert.Equal(t, "Order", cfg.Schema.Entity)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: sqlite\n")
	t.Setenv("ENTQ_STORE_BACKEND", "minio")
	t.Setenv("ENTQ_STORE_ENDPOINT", "localhost:9000")
	t.Setenv("ENTQ_STORE_BUCKET", "entities")
	t.Setenv("ENTQ_STORE_TAG_INDEXING", "false")
	t.Setenv("ENTQ_SCHEMA_ENTITY", "Doc")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendMinio, cfg.Store.Backend, "environment wins over the file")
	assert.Equal(t, "localhost:9000", cfg.Store.Endpoint)
	assert.Equal(t, "entities", cfg.Store.Bucket)
	assert.False(t, cfg.Store.TagIndexing)
	assert.Equal(t, "Doc", cfg.Schema.Entity)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		contains string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "dynamo" }, "unknown backend"},
		{"sqlite without path", func(c *Config) { c.Store.Backend = BackendSQLite; c.Store.Path = "" }, "store.path"},
		{"minio without endpoint", func(c *Config) { c.Store.Backend = BackendMinio; c.Store.Bucket = "b" }, "store.endpoint"},
		{"minio without bucket", func(c *Config) { c.Store.Backend = BackendMinio; c.Store.Endpoint = "h:9000" }, "store.bucket"},
		{"negative page size", func(c *Config) { c.Store.PageSize = -1 }, "page_size"},
		{"cache without ttl", func(c *Config) { c.Cache.RedisAddr = "h:6379"; c.Cache.TTL = 0 }, "cache.ttl"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

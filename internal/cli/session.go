package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/entq/internal/compiler"
	"github.com/roach88/entq/internal/config"
	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/harness"
	"github.com/roach88/entq/internal/store"
	"github.com/roach88/entq/internal/store/cachestore"
	"github.com/roach88/entq/internal/store/memstore"
	"github.com/roach88/entq/internal/store/objectstore"
	"github.com/roach88/entq/internal/store/sqlitestore"
)

// StoreOptions holds the flags shared by commands that open a store.
type StoreOptions struct {
	Schema string // CUE file; defaults to schema.file from the config
	Entity string // entity name; defaults to schema.entity
	Seed   string // YAML seed file stored before the command runs
}

// session is an opened schema and store.
type session struct {
	defs    *compiler.Definitions
	schema  *entity.Schema
	store   store.Store
	closers []func() error
}

// Close releases the store and cache connections.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openSession loads the schema and opens the configured store.
func openSession(ctx context.Context, cfg *config.Config, so StoreOptions) (*session, error) {
	path := so.Schema
	if path == "" {
		path = cfg.Schema.File
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no schema: pass --schema or set schema.file")
	}
	name := so.Entity
	if name == "" {
		name = cfg.Schema.Entity
	}

	defs, err := compiler.LoadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	schema, err := defs.Schema(name)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	s := &session{defs: defs, schema: schema}
	if err := s.open(ctx, cfg); err != nil {
		_ = s.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	if so.Seed != "" {
		n, err := s.seed(ctx, so.Seed)
		if err != nil {
			_ = s.Close()
			return nil, WrapExitError(ExitCommandError, "failed to seed store", err)
		}
		slog.Debug("seeded store", "file", so.Seed, "entities", n)
	}
	return s, nil
}

// open builds the backend named by store.backend, wrapped in the Redis
// body cache when cache.redis_addr is set.
func (s *session) open(ctx context.Context, cfg *config.Config) error {
	sc := cfg.Store
	switch sc.Backend {
	case config.BackendMemory:
		ms, err := memstore.New(s.schema, memstore.WithTagIndexing(sc.TagIndexing))
		if err != nil {
			return err
		}
		s.store = ms
	case config.BackendSQLite:
		ss, err := sqlitestore.Open(sc.Path, s.schema,
			sqlitestore.WithTagIndexing(sc.TagIndexing),
			sqlitestore.WithPageSize(sc.PageSize))
		if err != nil {
			return err
		}
		s.store = ss
		s.closers = append(s.closers, ss.Close)
	case config.BackendMinio:
		bucket, err := objectstore.NewMinioBucket(ctx, objectstore.Config{
			Endpoint:        sc.Endpoint,
			AccessKeyID:     sc.AccessKey,
			SecretAccessKey: sc.SecretKey,
			UseSSL:          sc.UseSSL,
			Bucket:          sc.Bucket,
		})
		if err != nil {
			return err
		}
		obj, err := objectstore.New(bucket, s.schema, objectstore.WithTagIndexing(sc.TagIndexing))
		if err != nil {
			return err
		}
		s.store = obj
	default:
		return fmt.Errorf("unknown backend %q", sc.Backend)
	}
	slog.Debug("opened store", "backend", sc.Backend, "schema", s.schema.Name, "tag_indexing", sc.TagIndexing)

	if cfg.Cache.RedisAddr != "" {
		cache, err := cachestore.NewRedisCache(ctx, cachestore.Options{
			Address:  cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return err
		}
		s.closers = append(s.closers, cache.Close)
		s.store = cachestore.New(s.store, cache, cfg.Cache.TTL)
	}
	return nil
}

// seed stores the entities of a seed file.
func (s *session) seed(ctx context.Context, path string) (int, error) {
	seeds, err := harness.LoadSeeds(path)
	if err != nil {
		return 0, err
	}
	entities, err := harness.BuildEntities(s.schema, seeds)
	if err != nil {
		return 0, err
	}
	for _, e := range entities {
		if err := s.store.Put(ctx, e); err != nil {
			return 0, fmt.Errorf("put %s: %w", e.Locator, err)
		}
	}
	return len(entities), nil
}

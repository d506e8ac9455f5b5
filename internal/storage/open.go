package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/compression"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/database"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/leveldb"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/pebble"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/sqldb"
)

// Backends.
const (
	BackendPebble   = "pebble"
	BackendLevelDB  = "leveldb"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// Config selects and locates the run database.
type Config struct {
	Backend     string `toml:"backend" mapstructure:"backend"`
	Path        string `toml:"path" mapstructure:"path"`
	DSN         string `toml:"dsn" mapstructure:"dsn"`
	CacheSize   int    `toml:"cache_size" mapstructure:"cache_size"`
	Compression string `toml:"compression" mapstructure:"compression"`
}

// OpenDB opens the key-value database named by cfg.
func OpenDB(ctx context.Context, cfg Config) (database.DB, error) {
	switch cfg.Backend {
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%s backend needs a path", cfg.Backend)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", filepath.Dir(cfg.Path), err)
		}
		db, err := sqldb.Open(ctx, sqldb.SQLite, cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case BackendPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%s backend needs a dsn", cfg.Backend)
		}
		db, err := sqldb.Open(ctx, sqldb.Postgres, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	case BackendMemory:
		db, err := leveldb.OpenMemory()
		if err != nil {
			return nil, err
		}
		return db, nil
	case BackendPebble, BackendLevelDB:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%s backend needs a path", cfg.Backend)
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", cfg.Path, err)
		}
		if cfg.Backend == BackendPebble {
			db, err := pebble.Open(cfg.Path)
			if err != nil {
				return nil, err
			}
			return db, nil
		}
		db, err := leveldb.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Open opens the database named by cfg and wraps it in a RunStore.
func Open(ctx context.Context, cfg Config) (*RunStore, error) {
	comp, err := compression.Get(cfg.Compression)
	if err != nil {
		return nil, err
	}
	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := NewRunStore(ctx, db, cfg.CacheSize, WithCompressor(comp))
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Package metastore provides the key-value metadata store the calculator
// index is persisted to. Two drivers are available: SQLite and BadgerDB.
package metastore

import (
	"context"
	"fmt"
	"log/slog"
)

// Drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Store is a flat key-value store for JSON metadata records.
// ReadMetadata returns apperr.ErrNotFound for absent keys.
type Store interface {
	ReadMetadata(ctx context.Context, key string) ([]byte, error)
	WriteMetadata(ctx context.Context, key string, value []byte) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Verify drivers satisfy Store at compile time.
var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Badger)(nil)
)

// Open opens the store for the named driver at path.
func Open(driver, path string, logger *slog.Logger) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(path)
	case DriverBadger:
		cfg := DefaultBadgerConfig()
		cfg.Path = path
		cfg.Logger = logger
		return OpenBadger(cfg)
	default:
		return nil, fmt.Errorf("metastore: unknown driver %q", driver)
	}
}

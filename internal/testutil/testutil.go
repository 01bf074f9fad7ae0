// Package testutil provides shared test helpers for setting up boards, metadata stores and engines.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/tally/internal/board"
	"github.com/starford/tally/internal/engine"
	"github.com/starford/tally/internal/metastore"
)

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestStore creates a temporary SQLite metadata store that is automatically cleaned up.
func TestStore(t *testing.T) *metastore.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tally-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := metastore.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestBoard creates a board in a temporary directory.
func TestBoard(t *testing.T) *board.Board {
	t.Helper()
	b, err := board.Open(t.TempDir(), Logger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	return b
}

// TestEngine starts an engine over b and store, subscribed to b's events.
func TestEngine(t *testing.T, b *board.Board, store engine.MetadataStore, opts ...engine.Option) *engine.Engine {
	t.Helper()
	opts = append([]engine.Option{engine.WithLogger(Logger())}, opts...)
	e := engine.New(b, store, opts...)
	t.Cleanup(e.Close)
	e.Attach(b)
	if err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return e
}

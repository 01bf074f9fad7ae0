package metastore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/starford/tally/internal/apperr"
)

func testSQLite(t *testing.T) *SQLite {
	t.Helper()
	f, err := os.CreateTemp("", "tally-meta-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	s, err := OpenSQLite(f.Name())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_SchemaCreation(t *testing.T) {
	s := testSQLite(t)
	var count int
	if err := s.conn.QueryRow(`SELECT count(*) FROM metadata`).Scan(&count); err != nil {
		t.Fatalf("metadata table missing: %v", err)
	}
}

func TestSQLite_ReadMissing(t *testing.T) {
	s := testSQLite(t)
	_, err := s.ReadMetadata(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLite_WriteReadOverwrite(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	if err := s.WriteMetadata(ctx, "k", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	if err := s.WriteMetadata(ctx, "k", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	got, err := s.ReadMetadata(ctx, "k")
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("value = %s", got)
	}
}

func TestSQLite_Keys(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()
	_ = s.WriteMetadata(ctx, "b", []byte("1"))
	_ = s.WriteMetadata(ctx, "a", []byte("2"))

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("keys = %v", keys)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("postgres", "x", nil); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

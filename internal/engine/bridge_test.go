package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tally/internal/calc"
)

func seededIndex() *Index {
	idx := NewIndex()
	idx.Register(DerivedNote{
		ID:        "d1",
		Operation: calc.Sum,
		SourceIDs: []string{"a", "b"},
		CreatedAt: time.Date(2026, 2, 3, 4, 5, 6, 789, time.UTC),
	})
	idx.Register(DerivedNote{
		ID:        "d2",
		Operation: calc.Product,
		SourceIDs: []string{"c", "c"},
		CreatedAt: time.Date(2026, 2, 3, 4, 5, 7, 0, time.UTC),
	})
	return idx
}

func TestBridge_LoadMissingKey(t *testing.T) {
	fb := newFakeBoard()
	b := NewBridge(fb, fb, "", quietLogger())
	idx, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, DefaultMetadataKey, b.Key())
}

func TestBridge_LoadThenSaveIsByteStable(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBoard()
	fb.numeric("d1", "3")
	fb.numeric("d2", "9")

	require.NoError(t, NewBridge(fb, fb, "", quietLogger()).Save(ctx, seededIndex()))
	before := string(fb.stored(DefaultMetadataKey))
	writes := fb.writes()

	b := NewBridge(fb, fb, "", quietLogger())
	idx, err := b.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())
	require.NoError(t, b.Save(ctx, idx))

	assert.Equal(t, before, string(fb.stored(DefaultMetadataKey)))
	assert.Equal(t, writes, fb.writes(), "clean reload does not rewrite the record")

	encoded, err := Encode(idx)
	require.NoError(t, err)
	assert.Equal(t, before, string(encoded))
}

func TestBridge_LoadPrunesMissingNotes(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBoard()
	fb.numeric("d2", "9")
	require.NoError(t, NewBridge(fb, fb, "", quietLogger()).Save(ctx, seededIndex()))

	b := NewBridge(fb, fb, "", quietLogger())
	idx, err := b.Load(ctx)
	require.NoError(t, err)
	_, ok := idx.Get("d1")
	assert.False(t, ok)
	_, ok = idx.Get("d2")
	assert.True(t, ok)

	stored := storedDoc(t, fb)
	assert.NotContains(t, stored.Notes, "d1")
	assert.Contains(t, stored.Notes, "d2")
}

func TestBridge_ProbeFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBoard()
	fb.numeric("d2", "9")
	require.NoError(t, NewBridge(fb, fb, "", quietLogger()).Save(ctx, seededIndex()))
	fb.failFetch["d1"] = errUnavailable

	idx, err := NewBridge(fb, fb, "", quietLogger()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
}

func TestBridge_LoadDoesNotCheckSources(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBoard()
	fb.numeric("d1", "3")
	fb.numeric("d2", "9")
	require.NoError(t, NewBridge(fb, fb, "", quietLogger()).Save(ctx, seededIndex()))

	// None of the sources exist; the notes themselves do.
	idx, err := NewBridge(fb, fb, "", quietLogger()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
}

func TestBridge_LoadLegacyLayout(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBoard()
	fb.numeric("old", "7")
	legacy := `{"old":{"operation":"sum","sourceIds":["a","b"],"operationSymbol":"+","createdAt":"2025-12-01T10:00:00Z"}}`
	require.NoError(t, fb.WriteMetadata(ctx, DefaultMetadataKey, []byte(legacy)))

	b := NewBridge(fb, fb, "", quietLogger())
	idx, err := b.Load(ctx)
	require.NoError(t, err)
	note, ok := idx.Get("old")
	require.True(t, ok)
	assert.Equal(t, calc.Sum, note.Operation)
	assert.Equal(t, []string{"a", "b"}, note.SourceIDs)

	// Saving migrates to the versioned layout.
	require.NoError(t, b.Save(ctx, idx))
	assert.Equal(t, SchemaVersion, storedDoc(t, fb).Version)
}

func TestBridge_SkipsUnreadableRecords(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBoard()
	fb.numeric("good", "1")
	fb.numeric("bad", "1")
	raw := `{"version":1,"notes":{"good":{"operation":"product","sourceIds":["a"],"createdAt":"2025-12-01T10:00:00Z"},"bad":{"operation":"divide","sourceIds":["a"]}}}`
	require.NoError(t, fb.WriteMetadata(ctx, DefaultMetadataKey, []byte(raw)))

	idx, err := NewBridge(fb, fb, "", quietLogger()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.NotContains(t, storedDoc(t, fb).Notes, "bad")
}

func TestBridge_RejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBoard()
	require.NoError(t, fb.WriteMetadata(ctx, DefaultMetadataKey, []byte(`{"version":99,"notes":{}}`)))

	_, err := NewBridge(fb, fb, "", quietLogger()).Load(ctx)
	require.Error(t, err)
}

func TestBridge_SaveFailureIsTransient(t *testing.T) {
	fb := newFakeBoard()
	fb.failWrite = true
	err := NewBridge(fb, fb, "", quietLogger()).Save(context.Background(), seededIndex())
	require.ErrorIs(t, err, errUnavailable)
}

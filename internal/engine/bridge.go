package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/calc"
	"github.com/starford/tally/internal/checksum"
)

// SchemaVersion is the version tag written with every index snapshot.
const SchemaVersion = 1

// DefaultMetadataKey is the store key the index is saved under.
const DefaultMetadataKey = "tally.calculator-notes"

type record struct {
	Operation       calc.Operation `json:"operation"`
	OperationSymbol string         `json:"operationSymbol"`
	SourceIDs       []string       `json:"sourceIds"`
	CreatedAt       time.Time      `json:"createdAt"`
}

type document struct {
	Version int               `json:"version"`
	Notes   map[string]record `json:"notes"`
}

// Bridge mirrors the index into the metadata store and reconciles it
// against the board on load.
type Bridge struct {
	store  MetadataStore
	canvas Canvas
	key    string
	logger *slog.Logger

	// checksum of the last record read or written
	last string
}

// NewBridge creates a bridge writing under key.
func NewBridge(store MetadataStore, canvas Canvas, key string, logger *slog.Logger) *Bridge {
	if key == "" {
		key = DefaultMetadataKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{store: store, canvas: canvas, key: key, logger: logger}
}

// Key returns the metadata key the bridge writes to.
func (b *Bridge) Key() string {
	return b.key
}

// Encode serializes idx. Map keys are emitted sorted, so equal indexes
// encode to equal bytes.
func Encode(idx *Index) ([]byte, error) {
	doc := document{Version: SchemaVersion, Notes: make(map[string]record, idx.Len())}
	for _, n := range idx.Entries() {
		doc.Notes[n.ID] = record{
			Operation:       n.Operation,
			OperationSymbol: n.Operation.Symbol(),
			SourceIDs:       n.SourceIDs,
			CreatedAt:       n.CreatedAt.UTC(),
		}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("engine: encode index: %w", err)
	}
	return data, nil
}

// Save writes the whole index. A snapshot identical to the last one seen is
// not written again.
func (b *Bridge) Save(ctx context.Context, idx *Index) error {
	data, err := Encode(idx)
	if err != nil {
		return err
	}
	indexEntries.Set(float64(idx.Len()))

	cs := checksum.Sum(data)
	if cs == b.last {
		indexSaves.WithLabelValues("unchanged").Inc()
		return nil
	}
	if err := b.store.WriteMetadata(ctx, b.key, data); err != nil {
		indexSaves.WithLabelValues("error").Inc()
		return fmt.Errorf("engine: save index: %w", errors.Join(apperr.ErrTransientIO, err))
	}
	b.last = cs
	indexSaves.WithLabelValues("written").Inc()
	return nil
}

// Load reads the stored index and drops entries whose board item no longer
// exists. When anything was dropped the pruned index is written back. Sources
// are not checked here.
func (b *Bridge) Load(ctx context.Context) (*Index, error) {
	data, err := b.store.ReadMetadata(ctx, b.key)
	if errors.Is(err, apperr.ErrNotFound) {
		b.last = ""
		return NewIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("engine: load index: %w", errors.Join(apperr.ErrTransientIO, err))
	}
	b.last = checksum.Sum(data)

	notes, skipped, err := b.decode(data)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(notes))
	for id := range notes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	idx := NewIndex()
	pruned := skipped
	for _, id := range ids {
		_, err := b.canvas.FetchItem(ctx, id)
		switch {
		case err == nil:
			idx.Register(notes[id])
		case errors.Is(err, apperr.ErrNotFound):
			pruned++
			b.logger.Debug("engine: reconcile dropped stale note", slog.String("id", id))
		default:
			// Keep what cannot be verified; the next load tries again.
			idx.Register(notes[id])
			b.logger.Warn("engine: reconcile probe failed",
				slog.String("id", id),
				slog.String("error", err.Error()))
		}
	}

	indexEntries.Set(float64(idx.Len()))
	if pruned > 0 {
		reconcilePruned.Add(float64(pruned))
		b.logger.Info("engine: reconcile pruned index",
			slog.Int("pruned", pruned),
			slog.Int("kept", idx.Len()))
		if err := b.Save(ctx, idx); err != nil {
			b.logger.Warn("engine: save after reconcile failed", slog.String("error", err.Error()))
		}
	}
	return idx, nil
}

// decode accepts the versioned layout and the legacy flat map of id to
// record. Records that cannot be read are skipped and counted.
func (b *Bridge) decode(data []byte) (map[string]DerivedNote, int, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, 0, fmt.Errorf("engine: decode index: %w", err)
	}

	raw := probe
	if v, ok := probe["version"]; ok {
		var version int
		if err := json.Unmarshal(v, &version); err != nil {
			return nil, 0, fmt.Errorf("engine: decode index version: %w", err)
		}
		if version > SchemaVersion {
			return nil, 0, fmt.Errorf("engine: index schema version %d is newer than supported %d", version, SchemaVersion)
		}
		raw = nil
		if n, ok := probe["notes"]; ok && string(n) != "null" {
			if err := json.Unmarshal(n, &raw); err != nil {
				return nil, 0, fmt.Errorf("engine: decode index notes: %w", err)
			}
		}
	}

	out := make(map[string]DerivedNote, len(raw))
	skipped := 0
	for id, msg := range raw {
		var r record
		if err := json.Unmarshal(msg, &r); err != nil || !r.Operation.Valid() {
			skipped++
			b.logger.Warn("engine: skipping unreadable index record", slog.String("id", id))
			continue
		}
		out[id] = DerivedNote{
			ID:        id,
			Operation: r.Operation,
			SourceIDs: r.SourceIDs,
			CreatedAt: r.CreatedAt,
		}
	}
	return out, skipped, nil
}

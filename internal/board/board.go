// Package board implements the canvas the engine works against: a directory
// of item files, one Markdown file per item, plus an in-memory selection.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/checksum"
	"github.com/starford/tally/internal/itemfile"
	"github.com/starford/tally/internal/models"
)

const itemExt = ".md"

// Board is a file-backed canvas. It is safe for concurrent use.
type Board struct {
	root   string // absolute path to board directory
	logger *slog.Logger
	disp   *dispatcher

	mu        sync.Mutex
	known     map[string]string // id -> checksum of the last version seen
	selection []string
}

// Open creates a board rooted at dir, creating the directory if needed, and
// records the checksums of the items already present.
func Open(dir string, logger *slog.Logger) (*Board, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("board: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("board: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("board: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("board: root is not a directory: %s", abs)
	}

	b := &Board{
		root:   abs,
		logger: logger,
		known:  make(map[string]string),
	}
	metas, err := b.scan()
	if err != nil {
		return nil, err
	}
	for _, m := range metas {
		b.known[m.ID] = m.Checksum
	}
	b.disp = newDispatcher()
	return b, nil
}

// Close stops event delivery.
func (b *Board) Close() {
	b.disp.close()
}

// Root returns the absolute board directory.
func (b *Board) Root() string {
	return b.root
}

// Subscribe registers handler for events of kind. Handlers run on the
// board's delivery goroutine.
func (b *Board) Subscribe(kind models.EventKind, handler func(models.Event)) {
	b.disp.subscribe(kind, handler)
}

// itemPath maps an item id to its file, rejecting ids that would escape the
// board directory.
func (b *Board) itemPath(id string) (string, error) {
	if id == "" || strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return "", fmt.Errorf("board: invalid item id %q: %w", id, apperr.ErrValidation)
	}
	return filepath.Join(b.root, id+itemExt), nil
}

func idFromName(name string) (string, bool) {
	if !strings.HasSuffix(name, itemExt) || strings.HasPrefix(name, ".") {
		return "", false
	}
	return strings.TrimSuffix(name, itemExt), true
}

// scan returns metadata for every item file in the board directory.
func (b *Board) scan() ([]models.ItemMetadata, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("board: list: %w", err)
	}
	var out []models.ItemMetadata
	for _, e := range entries {
		id, ok := idFromName(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.root, e.Name()))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("board: list: %w", err)
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, models.ItemMetadata{
			ID:        id,
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

func (b *Board) read(id string) (models.Item, []byte, error) {
	path, err := b.itemPath(id)
	if err != nil {
		return models.Item{}, nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.Item{}, nil, fmt.Errorf("board: item %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Item{}, nil, fmt.Errorf("board: read %s: %w", id, errors.Join(apperr.ErrTransientIO, err))
	}
	return itemfile.Decode(id, data), data, nil
}

// write encodes and atomically stores item, remembering its checksum so the
// watcher does not report the board's own writes.
func (b *Board) write(item models.Item) error {
	path, err := b.itemPath(item.ID)
	if err != nil {
		return err
	}
	data, err := itemfile.Encode(item)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.known[item.ID] = checksum.Sum(data)
	b.mu.Unlock()
	if err := writeAtomic(path, data); err != nil {
		b.mu.Lock()
		delete(b.known, item.ID)
		b.mu.Unlock()
		return err
	}
	return nil
}

// writeAtomic writes content via tmp file → fsync → rename.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tally-tmp-*")
	if err != nil {
		return fmt.Errorf("board: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("board: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("board: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("board: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("board: rename: %w", err)
	}
	success = true
	return nil
}

// List returns every item on the board ordered by id.
func (b *Board) List(_ context.Context) ([]models.Item, error) {
	metas, err := b.scan()
	if err != nil {
		return nil, err
	}
	out := make([]models.Item, 0, len(metas))
	for _, m := range metas {
		item, _, err := b.read(m.ID)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// FetchItem returns the item with id.
func (b *Board) FetchItem(_ context.Context, id string) (models.Item, error) {
	item, _, err := b.read(id)
	return item, err
}

// CreateItem stores a new item. A caller-chosen id that is already taken
// fails with apperr.ErrAlreadyExists; an empty id gets a fresh UUID.
func (b *Board) CreateItem(_ context.Context, item models.Item) (models.Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	} else {
		path, err := b.itemPath(item.ID)
		if err != nil {
			return models.Item{}, err
		}
		if _, err := os.Stat(path); err == nil {
			return models.Item{}, fmt.Errorf("board: item %s: %w", item.ID, apperr.ErrAlreadyExists)
		}
	}
	if item.Type == "" {
		item.Type = models.TypeNumericNote
	}
	item.CreatedAt = time.Now().UTC().Truncate(time.Second)
	if err := b.write(item); err != nil {
		return models.Item{}, err
	}
	b.logger.Debug("board: item created", slog.String("id", item.ID), slog.String("type", item.Type))
	return item, nil
}

// CreateNumericNote creates a numeric note at pos.
func (b *Board) CreateNumericNote(ctx context.Context, content string, pos models.Position, style models.Style) (models.Item, error) {
	return b.CreateItem(ctx, models.Item{
		Type:    models.TypeNumericNote,
		Content: content,
		X:       pos.X,
		Y:       pos.Y,
		Style:   style,
	})
}

// ReadItem returns the item with id and the checksum of its stored form.
func (b *Board) ReadItem(_ context.Context, id string) (models.Item, string, error) {
	item, data, err := b.read(id)
	if err != nil {
		return models.Item{}, "", err
	}
	return item, checksum.Sum(data), nil
}

// UpdateItemContent replaces an item's content. Writing the content the item
// already has is a no-op and publishes nothing.
func (b *Board) UpdateItemContent(ctx context.Context, id, content string) error {
	_, err := b.EditItem(ctx, id, Edit{Content: &content}, "")
	return err
}

// MoveItem changes an item's position.
func (b *Board) MoveItem(ctx context.Context, id string, pos models.Position) (models.Item, error) {
	return b.EditItem(ctx, id, Edit{Position: &pos}, "")
}

// Edit lists the item fields to change; nil fields are kept.
type Edit struct {
	Content  *string
	Position *models.Position
}

// EditItem applies edit to the item. When ifMatch is non-empty it must equal
// the checksum of the stored item or the edit fails with apperr.ErrConflict.
func (b *Board) EditItem(_ context.Context, id string, edit Edit, ifMatch string) (models.Item, error) {
	item, data, err := b.read(id)
	if err != nil {
		return models.Item{}, err
	}
	if ifMatch != "" && !checksum.Matches(data, ifMatch) {
		return models.Item{}, fmt.Errorf("board: item %s: checksum mismatch: %w", id, apperr.ErrConflict)
	}

	updated := item
	if edit.Content != nil {
		updated.Content = *edit.Content
	}
	if edit.Position != nil {
		updated.X, updated.Y = edit.Position.X, edit.Position.Y
	}
	if updated == item {
		return item, nil
	}
	if err := b.write(updated); err != nil {
		return models.Item{}, err
	}
	b.disp.publish(models.Event{Kind: models.EventItemsChanged, Items: []models.Item{updated}})
	return updated, nil
}

// DeleteItem removes an item and drops it from the selection.
func (b *Board) DeleteItem(_ context.Context, id string) error {
	path, err := b.itemPath(id)
	if err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.known, id)
	b.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("board: item %s: %w", id, apperr.ErrNotFound)
		}
		return fmt.Errorf("board: delete %s: %w", id, err)
	}
	b.logger.Debug("board: item deleted", slog.String("id", id))
	b.forget([]string{id})
	return nil
}

// forget publishes the deletion of ids and removes them from the selection.
func (b *Board) forget(ids []string) {
	b.disp.publish(models.Event{Kind: models.EventItemsDeleted, IDs: ids})

	b.mu.Lock()
	before := len(b.selection)
	b.selection = slices.DeleteFunc(b.selection, func(s string) bool {
		return slices.Contains(ids, s)
	})
	changed := len(b.selection) != before
	b.mu.Unlock()
	if changed {
		b.publishSelection()
	}
}

// Selection returns the selected items that still exist.
func (b *Board) Selection(ctx context.Context) ([]models.Item, error) {
	b.mu.Lock()
	ids := slices.Clone(b.selection)
	b.mu.Unlock()

	out := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		item, err := b.FetchItem(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// SetSelection replaces the selection. Unknown ids are ignored.
func (b *Board) SetSelection(ctx context.Context, ids []string) ([]models.Item, error) {
	var (
		kept  []string
		items []models.Item
	)
	for _, id := range ids {
		if slices.Contains(kept, id) {
			continue
		}
		item, err := b.FetchItem(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrValidation) {
			continue
		}
		if err != nil {
			return nil, err
		}
		kept = append(kept, id)
		items = append(items, item)
	}

	b.mu.Lock()
	b.selection = kept
	b.mu.Unlock()
	b.disp.publish(models.Event{Kind: models.EventSelectionChanged, Items: items})
	return items, nil
}

func (b *Board) publishSelection() {
	items, err := b.Selection(context.Background())
	if err != nil {
		b.logger.Warn("board: read selection failed", slog.String("error", err.Error()))
		return
	}
	b.disp.publish(models.Event{Kind: models.EventSelectionChanged, Items: items})
}

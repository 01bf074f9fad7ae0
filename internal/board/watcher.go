package board

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tally/internal/checksum"
	"github.com/starford/tally/internal/itemfile"
	"github.com/starford/tally/internal/models"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before publishing a batch.
const DefaultDebounce = 200 * time.Millisecond

// Watch observes the board directory for edits made outside the board
// (editors, sync tools, git) and publishes them as item events until ctx is
// cancelled. File events are collected for debounce and published as one
// items.changed and one items.deleted batch; files whose checksum matches
// the last version the board saw are skipped.
func (b *Board) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(b.root); err != nil {
		return err
	}
	b.logger.Info("watcher: started", slog.String("root", b.root))

	pending := make(map[string]struct{})
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			b.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			ids := make([]string, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			clear(pending)
			b.flushPending(ids)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			id, ok := idFromName(filepath.Base(ev.Name))
			if !ok {
				continue
			}
			pending[id] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// flushPending compares the current state of each touched file with the last
// version the board saw and publishes the differences.
func (b *Board) flushPending(ids []string) {
	slices.Sort(ids)
	var (
		changed []models.Item
		deleted []string
	)
	for _, id := range ids {
		path, err := b.itemPath(id)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			b.mu.Lock()
			_, seen := b.known[id]
			delete(b.known, id)
			b.mu.Unlock()
			if seen {
				deleted = append(deleted, id)
			}
			continue
		}
		if err != nil {
			b.logger.Warn("watcher: read failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}

		sum := checksum.Sum(data)
		b.mu.Lock()
		prev, seen := b.known[id]
		b.known[id] = sum
		b.mu.Unlock()
		if seen && prev == sum {
			continue
		}
		changed = append(changed, itemfile.Decode(id, data))
	}

	if len(changed) > 0 {
		b.logger.Debug("watcher: items changed", slog.Int("count", len(changed)))
		b.disp.publish(models.Event{Kind: models.EventItemsChanged, Items: changed})
	}
	if len(deleted) > 0 {
		b.logger.Debug("watcher: items deleted", slog.Int("count", len(deleted)))
		b.forget(deleted)
	}
}

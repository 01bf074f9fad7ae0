package board

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/tally/internal/models"
)

func startWatch(t *testing.T, b *Board) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Watch(ctx, 20*time.Millisecond)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_ExternalEditPublished(t *testing.T) {
	b := tempBoard(t)
	item, _ := b.CreateNumericNote(context.Background(), "1", models.Position{}, models.Style{})
	rec := record(b, models.EventItemsChanged)
	startWatch(t, b)

	_ = os.WriteFile(filepath.Join(b.Root(), item.ID+".md"), []byte("---\ntype: numeric-note\n---\n5\n"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		for _, ev := range rec.snapshot() {
			for _, it := range ev.Items {
				if it.ID == item.ID && it.Content == "5" {
					return true
				}
			}
		}
		return false
	}, "external edit not published")
}

func TestWatcher_OwnWritesNotRepublished(t *testing.T) {
	b := tempBoard(t)
	ctx := context.Background()
	item, _ := b.CreateNumericNote(ctx, "1", models.Position{}, models.Style{})
	rec := record(b, models.EventItemsChanged)
	startWatch(t, b)

	if err := b.UpdateItemContent(ctx, item.ID, "2"); err != nil {
		t.Fatalf("UpdateItemContent: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
}

func TestWatcher_ExternalRemovePublished(t *testing.T) {
	b := tempBoard(t)
	item, _ := b.CreateNumericNote(context.Background(), "1", models.Position{}, models.Style{})
	rec := record(b, models.EventItemsDeleted)
	startWatch(t, b)

	_ = os.Remove(filepath.Join(b.Root(), item.ID+".md"))

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		for _, ev := range rec.snapshot() {
			for _, id := range ev.IDs {
				if id == item.ID {
					return true
				}
			}
		}
		return false
	}, "external remove not published")
}

func TestWatcher_PreexistingFilesKnown(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "seed.md"), []byte("3\n"), 0o644)

	b, err := Open(dir, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(b.Close)
	rec := record(b, models.EventItemsDeleted)
	startWatch(t, b)

	_ = os.Remove(filepath.Join(dir, "seed.md"))

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool { return rec.count() > 0 }, "removal of pre-existing item not published")
}

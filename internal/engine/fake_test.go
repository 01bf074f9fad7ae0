package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/models"
)

var errUnavailable = errors.New("board unavailable")

// fakeBoard is an in-memory Canvas and MetadataStore.
type fakeBoard struct {
	mu        sync.Mutex
	items     map[string]models.Item
	meta      map[string][]byte
	selection []string
	seq       int

	metaWrites int
	creates    int

	failCreate bool
	failWrite  bool
	failUpdate map[string]error
	failFetch  map[string]error
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		items:      make(map[string]models.Item),
		meta:       make(map[string][]byte),
		failUpdate: make(map[string]error),
		failFetch:  make(map[string]error),
	}
}

func (f *fakeBoard) add(id, typ, content string, x, y float64) models.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := models.Item{ID: id, Type: typ, Content: content, X: x, Y: y}
	f.items[id] = it
	return it
}

func (f *fakeBoard) numeric(id, content string) models.Item {
	return f.add(id, models.TypeNumericNote, content, 0, 0)
}

func (f *fakeBoard) content(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	return it.Content, ok
}

func (f *fakeBoard) setContent(id, content string) models.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.items[id]
	it.Content = content
	f.items[id] = it
	return it
}

func (f *fakeBoard) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
}

func (f *fakeBoard) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *fakeBoard) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metaWrites
}

func (f *fakeBoard) stored(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta[key]
}

func (f *fakeBoard) FetchItem(_ context.Context, id string) (models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFetch[id]; err != nil {
		return models.Item{}, err
	}
	it, ok := f.items[id]
	if !ok {
		return models.Item{}, apperr.ErrNotFound
	}
	return it, nil
}

func (f *fakeBoard) CreateNumericNote(_ context.Context, content string, pos models.Position, style models.Style) (models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return models.Item{}, errUnavailable
	}
	f.seq++
	f.creates++
	it := models.Item{
		ID:      fmt.Sprintf("calc-%d", f.seq),
		Type:    models.TypeNumericNote,
		Content: content,
		X:       pos.X,
		Y:       pos.Y,
		Style:   style,
	}
	f.items[it.ID] = it
	return it, nil
}

func (f *fakeBoard) UpdateItemContent(_ context.Context, id, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failUpdate[id]; err != nil {
		return err
	}
	it, ok := f.items[id]
	if !ok {
		return apperr.ErrNotFound
	}
	it.Content = content
	f.items[id] = it
	return nil
}

func (f *fakeBoard) DeleteItem(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeBoard) Selection(_ context.Context) ([]models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Item
	for _, id := range f.selection {
		if it, ok := f.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeBoard) ReadMetadata(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.meta[key]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return v, nil
}

func (f *fakeBoard) WriteMetadata(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return errUnavailable
	}
	f.metaWrites++
	f.meta[key] = append([]byte(nil), value...)
	return nil
}


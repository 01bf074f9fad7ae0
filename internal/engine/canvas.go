package engine

import (
	"context"

	"github.com/starford/tally/internal/models"
)

// Canvas is the board capability the engine consumes. Lookups of missing
// items return apperr.ErrNotFound.
type Canvas interface {
	FetchItem(ctx context.Context, id string) (models.Item, error)
	CreateNumericNote(ctx context.Context, content string, pos models.Position, style models.Style) (models.Item, error)
	UpdateItemContent(ctx context.Context, id, content string) error
	DeleteItem(ctx context.Context, id string) error
	Selection(ctx context.Context) ([]models.Item, error)
}

// MetadataStore persists opaque records by key. Absent keys return
// apperr.ErrNotFound.
type MetadataStore interface {
	ReadMetadata(ctx context.Context, key string) ([]byte, error)
	WriteMetadata(ctx context.Context, key string, value []byte) error
}

// EventSource delivers board events to subscribers in order.
type EventSource interface {
	Subscribe(kind models.EventKind, handler func(models.Event))
}

// EventCallback is called after a derived note changes.
// kind is one of "created", "updated", "retired".
type EventCallback func(kind string, id string)

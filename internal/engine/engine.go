// Package engine keeps calculator notes consistent with their sources.
//
// Concurrency model: a single internal loop (goroutine) owns the dependency
// index. Every operation, whether triggered by a board event or by a caller,
// is queued as a task and runs to completion before the next one starts, so
// board round-trips made inside a task never interleave with other index
// mutations.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/tally/internal/models"
)

// ErrClosed is returned by operations submitted after Close.
var ErrClosed = errors.New("engine: closed")

const (
	defaultPlacementOffset = 150
	mailboxSize            = 256
)

type task func()

// Engine owns the dependency index and reacts to board events.
type Engine struct {
	canvas Canvas
	bridge *Bridge
	index  *Index
	logger *slog.Logger

	notify          EventCallback
	now             func() time.Time
	placementOffset float64
	derivedStyle    models.Style

	// ctx is used for event-driven work; it is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mailbox chan task
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetadataKey sets the key the index is persisted under.
func WithMetadataKey(key string) Option {
	return func(e *Engine) {
		if key != "" {
			e.bridge.key = key
		}
	}
}

// WithEventCallback registers a callback for derived-note changes.
func WithEventCallback(cb EventCallback) Option {
	return func(e *Engine) {
		e.notify = cb
	}
}

// WithPlacementOffset sets the vertical gap between the lowest source and a
// newly created calculator note.
func WithPlacementOffset(offset float64) Option {
	return func(e *Engine) {
		if offset > 0 {
			e.placementOffset = offset
		}
	}
}

// WithDerivedStyle sets the style applied to new calculator notes.
func WithDerivedStyle(style models.Style) Option {
	return func(e *Engine) {
		e.derivedStyle = style
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine with an empty index and starts its loop. Call Load
// to restore the persisted index.
func New(canvas Canvas, store MetadataStore, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		canvas:          canvas,
		bridge:          NewBridge(store, canvas, DefaultMetadataKey, nil),
		index:           NewIndex(),
		logger:          slog.Default(),
		now:             time.Now,
		placementOffset: defaultPlacementOffset,
		ctx:             ctx,
		cancel:          cancel,
		mailbox:         make(chan task, mailboxSize),
		stopCh:          make(chan struct{}),
		stopped:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.bridge.logger = e.logger

	go e.run()
	return e
}

func (e *Engine) run() {
	defer close(e.stopped)
	for {
		select {
		case <-e.stopCh:
			return
		case t := <-e.mailbox:
			t()
		}
	}
}

// Close stops the loop. Queued tasks that have not started are dropped.
func (e *Engine) Close() {
	if e.closed.CompareAndSwap(false, true) {
		e.cancel()
		close(e.stopCh)
	}
	<-e.stopped
}

// Attach subscribes the engine to a board's change and delete events.
func (e *Engine) Attach(src EventSource) {
	src.Subscribe(models.EventItemsChanged, func(ev models.Event) {
		e.HandleItemsChanged(ev.Items)
	})
	src.Subscribe(models.EventItemsDeleted, func(ev models.Event) {
		e.HandleItemsDeleted(ev.IDs)
	})
}

func (e *Engine) enqueue(t task) bool {
	if e.closed.Load() {
		return false
	}
	select {
	case e.mailbox <- t:
		return true
	case <-e.stopped:
		return false
	}
}

// do runs fn on the loop and waits for it. If ctx ends first the task still
// runs to completion; only the wait is abandoned.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if !e.enqueue(func() { done <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrClosed
	}
}

// Flush waits until every task queued before the call has run.
func (e *Engine) Flush(ctx context.Context) error {
	return e.do(ctx, func() error { return nil })
}

// Load replaces the in-memory index with the reconciled persisted one.
func (e *Engine) Load(ctx context.Context) error {
	return e.do(ctx, func() error {
		idx, err := e.bridge.Load(ctx)
		if err != nil {
			return err
		}
		e.index = idx
		e.logger.Info("engine: index loaded", slog.Int("notes", idx.Len()))
		return nil
	})
}

// Calculations returns a snapshot of every tracked calculator note.
func (e *Engine) Calculations(ctx context.Context) ([]DerivedNote, error) {
	var out []DerivedNote
	err := e.do(ctx, func() error {
		out = e.index.Entries()
		return nil
	})
	return out, err
}

// Calculation returns the tracked note with the given id.
func (e *Engine) Calculation(ctx context.Context, id string) (DerivedNote, bool, error) {
	var (
		note DerivedNote
		ok   bool
	)
	err := e.do(ctx, func() error {
		note, ok = e.index.Get(id)
		return nil
	})
	return note, ok, err
}

// persist snapshots the index. Failures are logged; the in-memory index stays
// authoritative and the next mutation writes again.
func (e *Engine) persist(ctx context.Context) {
	if err := e.bridge.Save(ctx, e.index); err != nil {
		e.logger.Warn("engine: persist failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) emit(kind, id string) {
	if e.notify != nil {
		e.notify(kind, id)
	}
}

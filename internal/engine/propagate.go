package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/calc"
	"github.com/starford/tally/internal/models"
)

// maxSourceFetches bounds concurrent source lookups within one recompute.
const maxSourceFetches = 8

// HandleItemsChanged queues a recompute of every calculator note that uses
// one of the changed items.
func (e *Engine) HandleItemsChanged(items []models.Item) {
	if len(items) == 0 {
		return
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	e.enqueue(func() { e.propagateChanges(e.ctx, ids) })
}

// HandleItemsDeleted queues removal of deleted calculator notes from the
// index. Deleted sources are not handled here; the next recompute of their
// dependents notices them.
func (e *Engine) HandleItemsDeleted(ids []string) {
	if len(ids) == 0 {
		return
	}
	e.enqueue(func() { e.forget(e.ctx, ids) })
}

// RecomputeAll recomputes every tracked note, retiring those left without
// sources.
func (e *Engine) RecomputeAll(ctx context.Context) error {
	return e.do(ctx, func() error {
		var errs []error
		for _, d := range e.index.Entries() {
			if err := e.recompute(ctx, d); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

func (e *Engine) propagateChanges(ctx context.Context, changed []string) {
	seen := make(map[string]struct{})
	var affected []DerivedNote
	for _, id := range changed {
		for _, d := range e.index.EntriesDependingOn(id) {
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}
			affected = append(affected, d)
		}
	}

	for _, d := range affected {
		if err := e.recompute(ctx, d); err != nil {
			e.logger.Warn("engine: recompute failed",
				slog.String("id", d.ID),
				slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) forget(ctx context.Context, ids []string) {
	removed := 0
	for _, id := range ids {
		if e.index.Unregister(id) {
			removed++
			e.logger.Debug("engine: calculator note deleted externally", slog.String("id", id))
			e.emit("retired", id)
		}
	}
	if removed > 0 {
		e.persist(ctx)
	}
}

// recompute refreshes one calculator note from its live sources. It returns
// an error only when the note was left untouched because a source could not
// be read.
func (e *Engine) recompute(ctx context.Context, d DerivedNote) error {
	values, err := e.liveValues(ctx, d.SourceIDs)
	if err != nil {
		recomputesTotal.WithLabelValues(outcomeFailed).Inc()
		return fmt.Errorf("engine: recompute %s: %w", d.ID, err)
	}

	if len(values) == 0 {
		e.retire(ctx, d)
		return nil
	}

	content := calc.FormatResult(calc.Aggregate(d.Operation, values))
	if err := e.canvas.UpdateItemContent(ctx, d.ID, content); err != nil {
		// The note is treated as gone whatever the reason.
		e.logger.Info("engine: calculator note write-back failed, dropping",
			slog.String("id", d.ID),
			slog.String("error", err.Error()))
		e.index.Unregister(d.ID)
		e.persist(ctx)
		recomputesTotal.WithLabelValues(outcomeGone).Inc()
		e.emit("retired", d.ID)
		return nil
	}

	recomputesTotal.WithLabelValues(outcomeUpdated).Inc()
	e.logger.Debug("engine: recomputed",
		slog.String("id", d.ID),
		slog.String("operation", d.Operation.String()),
		slog.Int("sources", len(values)),
		slog.String("result", content))
	e.emit("updated", d.ID)
	return nil
}

// retire deletes a calculator note that has no sources left.
func (e *Engine) retire(ctx context.Context, d DerivedNote) {
	if err := e.canvas.DeleteItem(ctx, d.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		e.logger.Warn("engine: delete of orphaned note failed",
			slog.String("id", d.ID),
			slog.String("error", err.Error()))
	}
	e.index.Unregister(d.ID)
	e.persist(ctx)
	recomputesTotal.WithLabelValues(outcomeRetired).Inc()
	e.logger.Info("engine: calculator note retired", slog.String("id", d.ID))
	e.emit("retired", d.ID)
}

// liveValues fetches sources and returns the values of those that still
// exist as numeric notes. Missing or non-numeric sources are skipped; any
// other fetch failure is returned.
func (e *Engine) liveValues(ctx context.Context, ids []string) ([]float64, error) {
	vals := make([]float64, len(ids))
	live := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxSourceFetches)
	for i, id := range ids {
		g.Go(func() error {
			item, err := e.canvas.FetchItem(gctx, id)
			if errors.Is(err, apperr.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("fetch source %s: %w", id, err)
			}
			v, ok := numericValue(item)
			vals[i], live[i] = v, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]float64, 0, len(ids))
	for i, ok := range live {
		if ok {
			out = append(out, vals[i])
		}
	}
	return out, nil
}

func numericValue(item models.Item) (float64, bool) {
	if item.Type != models.TypeNumericNote {
		return 0, false
	}
	v, err := calc.ParseValue(item.Content)
	if err != nil {
		return 0, false
	}
	return v, true
}

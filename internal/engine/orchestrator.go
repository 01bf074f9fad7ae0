package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/calc"
	"github.com/starford/tally/internal/models"
)

// MinSources is the smallest selection a calculation can be created from.
const MinSources = 2

// Calculation is the result of creating a calculator note.
type Calculation struct {
	Note   DerivedNote `json:"note"`
	Item   models.Item `json:"item"`
	Result string      `json:"result"`
}

// CreateCalculation creates a calculator note over the numeric notes among
// itemIDs and starts tracking it. Fewer than MinSources usable items is a
// validation error; nothing is created or registered in that case, nor when
// the board refuses the new note.
func (e *Engine) CreateCalculation(ctx context.Context, op calc.Operation, itemIDs []string) (*Calculation, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("engine: %s: %w", op, apperr.ErrValidation)
	}

	var out *Calculation
	err := e.do(ctx, func() error {
		sources, err := e.numericSources(ctx, itemIDs)
		if err != nil {
			return err
		}
		if len(sources) < MinSources {
			return fmt.Errorf("engine: select at least %d numeric notes, got %d: %w",
				MinSources, len(sources), apperr.ErrValidation)
		}

		values := make([]float64, len(sources))
		ids := make([]string, len(sources))
		for i, s := range sources {
			values[i], _ = calc.ParseValue(s.Content)
			ids[i] = s.ID
		}
		content := calc.FormatResult(calc.Aggregate(op, values))

		item, err := e.canvas.CreateNumericNote(ctx, content, e.placement(sources), e.derivedStyle)
		if err != nil {
			return fmt.Errorf("engine: create calculator note: %w", err)
		}

		note := DerivedNote{
			ID:        item.ID,
			Operation: op,
			SourceIDs: ids,
			CreatedAt: e.now().UTC(),
		}
		e.index.Register(note)
		e.persist(ctx)

		calculationsCreated.Inc()
		e.logger.Info("engine: calculator note created",
			slog.String("id", item.ID),
			slog.String("operation", op.String()),
			slog.Int("sources", len(ids)),
			slog.String("result", content))
		e.emit("created", item.ID)

		out = &Calculation{Note: note.clone(), Item: item, Result: content}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateFromSelection creates a calculation over the board's current selection.
func (e *Engine) CreateFromSelection(ctx context.Context, op calc.Operation) (*Calculation, error) {
	selected, err := e.canvas.Selection(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: read selection: %w", err)
	}
	ids := make([]string, len(selected))
	for i, it := range selected {
		ids[i] = it.ID
	}
	return e.CreateCalculation(ctx, op, ids)
}

// numericSources fetches the selected items and keeps the numeric notes.
func (e *Engine) numericSources(ctx context.Context, ids []string) ([]models.Item, error) {
	var out []models.Item
	for _, id := range ids {
		item, err := e.canvas.FetchItem(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("engine: fetch selected item %s: %w", id, err)
		}
		if _, ok := numericValue(item); ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// placement puts the new note under the horizontal centroid of the sources,
// below the lowest one.
func (e *Engine) placement(sources []models.Item) models.Position {
	var sumX, maxY float64
	for i, s := range sources {
		sumX += s.X
		if i == 0 || s.Y > maxY {
			maxY = s.Y
		}
	}
	return models.Position{
		X: sumX / float64(len(sources)),
		Y: maxY + e.placementOffset,
	}
}

// SelectionSummary describes whether a selection can become a calculation.
type SelectionSummary struct {
	Count   int  `json:"count"`
	Numeric int  `json:"numeric"`
	Ready   bool `json:"ready"`
}

// SummarizeSelection counts the numeric notes among items.
func SummarizeSelection(items []models.Item) SelectionSummary {
	s := SelectionSummary{Count: len(items)}
	for _, it := range items {
		if _, ok := numericValue(it); ok {
			s.Numeric++
		}
	}
	s.Ready = s.Numeric >= MinSources
	return s
}

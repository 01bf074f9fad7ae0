package api

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tally/internal/calc"
	"github.com/starford/tally/internal/engine"
	"github.com/starford/tally/internal/models"
)

var itemIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// CreateItemRequest is the request body for creating a board item.
type CreateItemRequest struct {
	ID      string       `json:"id,omitempty" example:"budget"`
	Type    string       `json:"type,omitempty" example:"numeric-note"`
	Content string       `json:"content" example:"42"`
	X       float64      `json:"x" example:"100"`
	Y       float64      `json:"y" example:"200"`
	Style   models.Style `json:"style"`
}

// Validate validates the request.
func (r *CreateItemRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Length(1, 128), validation.Match(itemIDPattern)),
		validation.Field(&r.Type, validation.In(models.TypeNumericNote, models.TypeStickyNote)),
	)
}

// UpdateItemRequest is the request body for updating an item. Omitted fields
// are left unchanged; x and y must be given together.
type UpdateItemRequest struct {
	Content *string  `json:"content,omitempty" example:"43"`
	X       *float64 `json:"x,omitempty"`
	Y       *float64 `json:"y,omitempty"`
}

// Validate validates the request.
func (r *UpdateItemRequest) Validate() error {
	if r.Content == nil && r.X == nil && r.Y == nil {
		return errors.New("content or position is required")
	}
	if (r.X == nil) != (r.Y == nil) {
		return errors.New("x and y must be given together")
	}
	return nil
}

// SelectionRequest replaces the board selection.
type SelectionRequest struct {
	IDs []string `json:"ids"`
}

// Validate validates the request.
func (r *SelectionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.IDs, validation.Each(validation.Required)),
	)
}

// CreateCalculationRequest is the request body for creating a calculator
// note. Without item_ids the current selection is used.
type CreateCalculationRequest struct {
	Operation string   `json:"operation" example:"sum" validate:"required"`
	ItemIDs   []string `json:"item_ids,omitempty"`
}

// Validate validates the request.
func (r *CreateCalculationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Operation, validation.Required, validation.By(func(v interface{}) error {
			_, err := calc.ParseOperation(v.(string))
			return err
		})),
		validation.Field(&r.ItemIDs, validation.Each(validation.Required)),
	)
}

// ItemDetail is a single item with the checksum usable in If-Match.
type ItemDetail struct {
	models.Item
	Checksum string `json:"checksum" example:"abc123..."`
}

// ItemListResponse wraps item listings.
type ItemListResponse struct {
	Items []models.Item `json:"items" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// SelectionResponse is the current selection and whether it can become a
// calculation.
type SelectionResponse struct {
	Items   []models.Item           `json:"items" validate:"required"`
	Summary engine.SelectionSummary `json:"summary" validate:"required"`
}

// CalculationListResponse wraps the tracked calculator notes.
type CalculationListResponse struct {
	Calculations []engine.DerivedNote `json:"calculations" validate:"required"`
	Total        int                  `json:"total" example:"3" validate:"required"`
}

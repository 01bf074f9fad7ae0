package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tally/internal/board"
	"github.com/starford/tally/internal/calc"
	"github.com/starford/tally/internal/engine"
	"github.com/starford/tally/internal/models"
)

// Board is the item store the API exposes.
type Board interface {
	List(ctx context.Context) ([]models.Item, error)
	ReadItem(ctx context.Context, id string) (models.Item, string, error)
	CreateItem(ctx context.Context, item models.Item) (models.Item, error)
	EditItem(ctx context.Context, id string, edit board.Edit, ifMatch string) (models.Item, error)
	DeleteItem(ctx context.Context, id string) error
	Selection(ctx context.Context) ([]models.Item, error)
	SetSelection(ctx context.Context, ids []string) ([]models.Item, error)
}

// Calculator creates and tracks calculator notes.
type Calculator interface {
	CreateCalculation(ctx context.Context, op calc.Operation, itemIDs []string) (*engine.Calculation, error)
	CreateFromSelection(ctx context.Context, op calc.Operation) (*engine.Calculation, error)
	Calculations(ctx context.Context) ([]engine.DerivedNote, error)
	Calculation(ctx context.Context, id string) (engine.DerivedNote, bool, error)
	RecomputeAll(ctx context.Context) error
}

// Handler holds API route handlers.
type Handler struct {
	board Board
	calc  Calculator
}

// NewHandler creates a new Handler.
func NewHandler(b Board, c Calculator) *Handler {
	return &Handler{board: b, calc: c}
}

// ListItems handles GET /api/items.
//
//	@Summary		List board items
//	@Tags			items
//	@Produce		json
//	@Param			type	query		string	false	"Filter by item type"
//	@Success		200		{object}	ItemListResponse
//	@Security		BearerAuth
//	@Router			/items [get]
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.board.List(r.Context())
	if err != nil {
		writeError(w, "list items", err)
		return
	}
	if typ := r.URL.Query().Get("type"); typ != "" {
		filtered := items[:0]
		for _, it := range items {
			if it.Type == typ {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	if items == nil {
		items = []models.Item{}
	}
	writeJSON(w, http.StatusOK, ItemListResponse{Items: items, Total: len(items)})
}

// GetItem handles GET /api/items/{id}.
//
//	@Summary		Get a single item
//	@Tags			items
//	@Produce		json
//	@Param			id	path		string	true	"Item id"
//	@Success		200	{object}	ItemDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, sum, err := h.board.ReadItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get item", err)
		return
	}
	w.Header().Set("ETag", `"`+sum+`"`)
	writeJSON(w, http.StatusOK, ItemDetail{Item: item, Checksum: sum})
}

// CreateItem handles POST /api/items.
//
//	@Summary		Create a board item
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateItemRequest	true	"Item to create"
//	@Success		201		{object}	models.Item
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items [post]
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.board.CreateItem(r.Context(), models.Item{
		ID:      req.ID,
		Type:    req.Type,
		Content: req.Content,
		X:       req.X,
		Y:       req.Y,
		Style:   req.Style,
	})
	if err != nil {
		writeError(w, "create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// UpdateItem handles PUT /api/items/{id}.
//
//	@Summary		Update an item with optimistic concurrency
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Item id"
//	@Param			If-Match	header		string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		UpdateItemRequest	true	"Fields to change"
//	@Success		200			{object}	models.Item
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [put]
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	edit := board.Edit{Content: req.Content}
	if req.X != nil {
		edit.Position = &models.Position{X: *req.X, Y: *req.Y}
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	item, err := h.board.EditItem(r.Context(), chi.URLParam(r, "id"), edit, ifMatch)
	if err != nil {
		writeError(w, "update item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/items/{id}.
//
//	@Summary		Delete an item
//	@Tags			items
//	@Param			id	path	string	true	"Item id"
//	@Success		204	"Item deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [delete]
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.board.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSelection handles GET /api/selection.
//
//	@Summary		Get the current selection
//	@Tags			selection
//	@Produce		json
//	@Success		200	{object}	SelectionResponse
//	@Security		BearerAuth
//	@Router			/selection [get]
func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	items, err := h.board.Selection(r.Context())
	if err != nil {
		writeError(w, "get selection", err)
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse(items))
}

// SetSelection handles PUT /api/selection.
//
//	@Summary		Replace the selection
//	@Tags			selection
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SelectionRequest	true	"Selected item ids"
//	@Success		200		{object}	SelectionResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/selection [put]
func (h *Handler) SetSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	items, err := h.board.SetSelection(r.Context(), req.IDs)
	if err != nil {
		writeError(w, "set selection", err)
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse(items))
}

func selectionResponse(items []models.Item) SelectionResponse {
	if items == nil {
		items = []models.Item{}
	}
	return SelectionResponse{Items: items, Summary: engine.SummarizeSelection(items)}
}

// ListCalculations handles GET /api/calculations.
//
//	@Summary		List tracked calculator notes
//	@Tags			calculations
//	@Produce		json
//	@Success		200	{object}	CalculationListResponse
//	@Security		BearerAuth
//	@Router			/calculations [get]
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	notes, err := h.calc.Calculations(r.Context())
	if err != nil {
		writeError(w, "list calculations", err)
		return
	}
	if notes == nil {
		notes = []engine.DerivedNote{}
	}
	writeJSON(w, http.StatusOK, CalculationListResponse{Calculations: notes, Total: len(notes)})
}

// GetCalculation handles GET /api/calculations/{id}.
//
//	@Summary		Get a tracked calculator note
//	@Tags			calculations
//	@Produce		json
//	@Param			id	path		string	true	"Calculator note id"
//	@Success		200	{object}	engine.DerivedNote
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/calculations/{id} [get]
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	note, ok, err := h.calc.Calculation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get calculation", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateCalculation handles POST /api/calculations.
//
//	@Summary		Create a calculator note from items or the selection
//	@Tags			calculations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateCalculationRequest	true	"Operation and optional item ids"
//	@Success		201		{object}	engine.Calculation
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/calculations [post]
func (h *Handler) CreateCalculation(w http.ResponseWriter, r *http.Request) {
	var req CreateCalculationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	op, _ := calc.ParseOperation(req.Operation)

	var (
		res *engine.Calculation
		err error
	)
	if len(req.ItemIDs) > 0 {
		res, err = h.calc.CreateCalculation(r.Context(), op, req.ItemIDs)
	} else {
		res, err = h.calc.CreateFromSelection(r.Context(), op)
	}
	if err != nil {
		writeError(w, "create calculation", err)
		return
	}
	slog.Debug("calculation created via api", slog.String("id", res.Item.ID))
	writeJSON(w, http.StatusCreated, res)
}

// RefreshCalculations handles POST /api/calculations/refresh.
//
//	@Summary		Recompute every calculator note
//	@Tags			calculations
//	@Success		204	"Recomputed"
//	@Security		BearerAuth
//	@Router			/calculations/refresh [post]
func (h *Handler) RefreshCalculations(w http.ResponseWriter, r *http.Request) {
	if err := h.calc.RecomputeAll(r.Context()); err != nil {
		writeError(w, "refresh calculations", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(b Board, c Calculator, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(b, c)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Items CRUD.
	r.Get("/items", h.ListItems)
	r.Post("/items", h.CreateItem)
	r.Get("/items/{id}", h.GetItem)
	r.Put("/items/{id}", h.UpdateItem)
	r.Delete("/items/{id}", h.DeleteItem)

	// Selection.
	r.Get("/selection", h.GetSelection)
	r.Put("/selection", h.SetSelection)

	// Calculator notes.
	r.Get("/calculations", h.ListCalculations)
	r.Post("/calculations", h.CreateCalculation)
	r.Post("/calculations/refresh", h.RefreshCalculations)
	r.Get("/calculations/{id}", h.GetCalculation)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

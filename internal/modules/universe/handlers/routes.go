package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all universe routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/universe", func(r chi.Router) {
		r.Post("/", h.HandleUpsertSecurity)
		r.Get("/", h.HandleListSecurities)
		r.Get("/{isin}", h.HandleGetSecurity)
		r.Put("/{isin}/active", h.HandleSetActive)
		r.Post("/{isin}/prices", h.HandleIngestPrices)
		r.Get("/{isin}/prices", h.HandleGetPrices)
	})
}

package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all selection routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/selection", func(r chi.Router) {
		r.Post("/", h.HandleRunSelection)
		r.Get("/latest", h.HandleGetLatest)
		r.Get("/runs", h.HandleListRuns)
		r.Get("/{id}", h.HandleGetRun)
	})
	r.Route("/qubo", func(r chi.Router) {
		r.Post("/preview", h.HandlePreviewModel)
	})
}

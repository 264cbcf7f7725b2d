// Package handlers provides HTTP handlers for selection runs and QUBO
// model previews.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/aristath/qfolio/internal/modules/qubo"
	"github.com/aristath/qfolio/internal/modules/selection"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles selection HTTP requests
type Handler struct {
	service *selection.Service
	runs    *selection.RunRepository
	log     zerolog.Logger
}

// NewHandler creates a new selection handler
func NewHandler(
	service *selection.Service,
	runs *selection.RunRepository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service: service,
		runs:    runs,
		log:     log.With().Str("handler", "selection").Logger(),
	}
}

// PreviewRequest carries caller-supplied statistics for a model preview.
type PreviewRequest struct {
	MeanReturns []float64   `json:"mean_returns"`
	Covariance  [][]float64 `json:"covariance"`
	LambdaRisk  float64     `json:"lambda_risk"`
	Cardinality int         `json:"cardinality,omitempty"`
}

// CoefficientEntry is one QUBO coefficient in a preview response.
type CoefficientEntry struct {
	I     int     `json:"i"`
	J     int     `json:"j"`
	Value float64 `json:"value"`
}

// HandleRunSelection handles POST /api/selection
func (h *Handler) HandleRunSelection(w http.ResponseWriter, r *http.Request) {
	var req selection.RunRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.log.Error().Err(err).Msg("Failed to decode request body")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	run, err := h.service.Run(r.Context(), req)
	if err != nil {
		if errors.Is(err, qubo.ErrInvalidParameter) || errors.Is(err, qubo.ErrDimensionMismatch) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Msg("Selection run failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": run,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetLatest handles GET /api/selection/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Latest()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "No selection runs yet", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Failed to load latest run")
		http.Error(w, "Failed to load latest run", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": run})
}

// HandleGetRun handles GET /api/selection/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.runs.Get(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": run})
}

// HandleListRuns handles GET /api/selection/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	summaries, err := h.runs.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []selection.RunSummary{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  summaries,
			"count": len(summaries),
		},
	})
}

// HandlePreviewModel handles POST /api/qubo/preview. It builds a model
// from caller-supplied statistics and returns its coefficients without
// solving.
func (h *Handler) HandlePreviewModel(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	n := len(req.MeanReturns)
	model, err := qubo.Build(req.MeanReturns, req.Covariance, req.LambdaRisk, n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries := make([]CoefficientEntry, 0, model.Size())
	for pair, value := range model.Coefficients() {
		entries = append(entries, CoefficientEntry{I: pair.I, J: pair.J, Value: value})
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].I != entries[b].I {
			return entries[a].I < entries[b].I
		}
		return entries[a].J < entries[b].J
	})

	data := map[string]interface{}{
		"num_variables": model.NumVariables(),
		"num_entries":   len(entries),
		"coefficients":  entries,
	}

	if req.Cardinality > 0 {
		constraint, err := qubo.NewCardinalityConstraint(n, req.Cardinality)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data["constraint"] = map[string]interface{}{
			"coefficients": constraint.Coefficients(),
			"target":       constraint.Target,
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Package handlers provides HTTP handlers for the security universe and
// price history ingestion.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/qfolio/internal/modules/universe"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles universe HTTP requests
type Handler struct {
	securities *universe.SecurityRepository
	history    *universe.HistoryDB
	log        zerolog.Logger
}

// NewHandler creates a new universe handler
func NewHandler(
	securities *universe.SecurityRepository,
	history *universe.HistoryDB,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		securities: securities,
		history:    history,
		log:        log.With().Str("handler", "universe").Logger(),
	}
}

// SecurityRequest is an upsert request for one security.
type SecurityRequest struct {
	ISIN   string `json:"isin"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Active *bool  `json:"active,omitempty"`
}

// PricesRequest is a batch of daily close prices for one security.
type PricesRequest struct {
	Prices []universe.DailyPrice `json:"prices"`
}

// ActiveRequest toggles a security's active flag.
type ActiveRequest struct {
	Active bool `json:"active"`
}

// HandleUpsertSecurity handles POST /api/universe
func (h *Handler) HandleUpsertSecurity(w http.ResponseWriter, r *http.Request) {
	var req SecurityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ISIN == "" {
		http.Error(w, "isin is required", http.StatusBadRequest)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	security := universe.Security{
		ISIN:   req.ISIN,
		Symbol: req.Symbol,
		Name:   req.Name,
		Active: active,
	}

	if err := h.securities.Upsert(security); err != nil {
		h.log.Error().Err(err).Str("isin", req.ISIN).Msg("Failed to upsert security")
		http.Error(w, "Failed to store security", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": security})
}

// HandleListSecurities handles GET /api/universe
func (h *Handler) HandleListSecurities(w http.ResponseWriter, r *http.Request) {
	var (
		securities []universe.Security
		err        error
	)
	if r.URL.Query().Get("all") == "true" {
		securities, err = h.securities.ListAll()
	} else {
		securities, err = h.securities.ListActive()
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list securities")
		http.Error(w, "Failed to list securities", http.StatusInternalServerError)
		return
	}
	if securities == nil {
		securities = []universe.Security{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"securities": securities,
			"count":      len(securities),
		},
	})
}

// HandleGetSecurity handles GET /api/universe/{isin}
func (h *Handler) HandleGetSecurity(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")

	security, err := h.securities.Get(isin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Security not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("isin", isin).Msg("Failed to load security")
		http.Error(w, "Failed to load security", http.StatusInternalServerError)
		return
	}

	count, err := h.history.CountPrices(isin)
	if err != nil {
		h.log.Error().Err(err).Str("isin", isin).Msg("Failed to count prices")
		http.Error(w, "Failed to load security", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"security":    security,
			"price_count": count,
		},
	})
}

// HandleSetActive handles PUT /api/universe/{isin}/active
func (h *Handler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")

	var req ActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.securities.SetActive(isin, req.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Security not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("isin", isin).Msg("Failed to update security")
		http.Error(w, "Failed to update security", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"isin":   isin,
			"active": req.Active,
		},
	})
}

// HandleIngestPrices handles POST /api/universe/{isin}/prices. Prices are
// pushed in by the operator or an external fetcher; this service does not
// reach out to market-data providers itself.
func (h *Handler) HandleIngestPrices(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")

	if _, err := h.securities.Get(isin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Security not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("isin", isin).Msg("Failed to load security")
		http.Error(w, "Failed to load security", http.StatusInternalServerError)
		return
	}

	var req PricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Prices) == 0 {
		http.Error(w, "prices must not be empty", http.StatusBadRequest)
		return
	}

	if err := h.history.IngestPrices(isin, req.Prices); err != nil {
		h.log.Error().Err(err).Str("isin", isin).Msg("Failed to ingest prices")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"isin":     isin,
			"ingested": len(req.Prices),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetPrices handles GET /api/universe/{isin}/prices
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	isin := chi.URLParam(r, "isin")

	days := 365
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	prices, err := h.history.GetDailyPrices(isin, days)
	if err != nil {
		h.log.Error().Err(err).Str("isin", isin).Msg("Failed to load prices")
		http.Error(w, "Failed to load prices", http.StatusInternalServerError)
		return
	}
	if prices == nil {
		prices = []universe.DailyPrice{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"isin":   isin,
			"prices": prices,
			"count":  len(prices),
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

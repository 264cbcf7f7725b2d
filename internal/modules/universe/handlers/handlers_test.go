package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/qfolio/internal/database"
	"github.com/aristath/qfolio/internal/modules/universe"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	dir := t.TempDir()

	universeDB, err := database.New(database.Config{
		Path: filepath.Join(dir, "universe.db"),
		Name: "universe",
	})
	require.NoError(t, err)
	t.Cleanup(func() { universeDB.Close() })

	historyDB, err := database.New(database.Config{
		Path: filepath.Join(dir, "history.db"),
		Name: "history",
	})
	require.NoError(t, err)
	t.Cleanup(func() { historyDB.Close() })

	securities, err := universe.NewSecurityRepository(universeDB.Conn(), zerolog.Nop())
	require.NoError(t, err)
	history, err := universe.NewHistoryDB(historyDB.Conn(), zerolog.Nop())
	require.NoError(t, err)

	handler := NewHandler(securities, history, zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})
	return r
}

func upsertSecurity(t *testing.T, router chi.Router, body string) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/universe/", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleUpsertAndListSecurities(t *testing.T) {
	router := newTestRouter(t)

	upsertSecurity(t, router, `{"isin": "US0000000001", "symbol": "AAA", "name": "Alpha Corp"}`)
	upsertSecurity(t, router, `{"isin": "US0000000002", "symbol": "BBB", "name": "Beta Corp", "active": false}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/universe/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Securities []universe.Security `json:"securities"`
			Count      int                 `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Count)
	assert.Equal(t, "US0000000001", resp.Data.Securities[0].ISIN)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/universe/?all=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Count)
}

func TestHandleUpsertSecurityValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/universe/", bytes.NewBufferString(`{"symbol": "AAA"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/universe/", bytes.NewBufferString(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetSecurity(t *testing.T) {
	router := newTestRouter(t)
	upsertSecurity(t, router, `{"isin": "US0000000001", "symbol": "AAA", "name": "Alpha Corp"}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/universe/US0000000001", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Security   universe.Security `json:"security"`
			PriceCount int               `json:"price_count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AAA", resp.Data.Security.Symbol)
	assert.Equal(t, 0, resp.Data.PriceCount)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/universe/XX0000000000", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSetActive(t *testing.T) {
	router := newTestRouter(t)
	upsertSecurity(t, router, `{"isin": "US0000000001", "symbol": "AAA", "name": "Alpha Corp"}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/universe/US0000000001/active", bytes.NewBufferString(`{"active": false}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/universe/", nil))
	var resp struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Data.Count)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/universe/XX0000000000/active", bytes.NewBufferString(`{"active": true}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePriceIngestionAndQuery(t *testing.T) {
	router := newTestRouter(t)
	upsertSecurity(t, router, `{"isin": "US0000000001", "symbol": "AAA", "name": "Alpha Corp"}`)

	// Recent dates so they fall inside the query window below.
	day1 := time.Now().UTC().AddDate(0, 0, -2).Format("2006-01-02")
	day2 := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	body := fmt.Sprintf(`{"prices": [
		{"date": %q, "close": 101.5},
		{"date": %q, "close": 100.0}
	]}`, day2, day1)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/universe/US0000000001/prices", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var ingestResp struct {
		Data struct {
			Ingested int `json:"ingested"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ingestResp))
	assert.Equal(t, 2, ingestResp.Data.Ingested)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/universe/US0000000001/prices?days=30", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var pricesResp struct {
		Data struct {
			Prices []universe.DailyPrice `json:"prices"`
			Count  int                   `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pricesResp))
	require.Equal(t, 2, pricesResp.Data.Count)
	// Ascending by date regardless of ingest order.
	assert.Equal(t, day1, pricesResp.Data.Prices[0].Date)
	assert.Equal(t, day2, pricesResp.Data.Prices[1].Date)
}

func TestHandlePriceIngestionValidation(t *testing.T) {
	router := newTestRouter(t)
	upsertSecurity(t, router, `{"isin": "US0000000001", "symbol": "AAA", "name": "Alpha Corp"}`)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"unknown security", "/api/universe/XX0000000000/prices", `{"prices": [{"date": "2026-01-01", "close": 1}]}`, http.StatusNotFound},
		{"empty batch", "/api/universe/US0000000001/prices", `{"prices": []}`, http.StatusBadRequest},
		{"bad date", "/api/universe/US0000000001/prices", `{"prices": [{"date": "01/02/2026", "close": 1}]}`, http.StatusBadRequest},
		{"malformed json", "/api/universe/US0000000001/prices", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.target, bytes.NewBufferString(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandleGetPricesBadDays(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/universe/US0000000001/prices?days=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

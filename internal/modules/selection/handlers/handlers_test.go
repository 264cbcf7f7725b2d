package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aristath/qfolio/internal/database"
	"github.com/aristath/qfolio/internal/modules/riskmodel"
	"github.com/aristath/qfolio/internal/modules/selection"
	"github.com/aristath/qfolio/internal/modules/universe"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLister struct {
	securities []universe.Security
}

func (f *fixedLister) ListActive() ([]universe.Security, error) {
	return f.securities, nil
}

type fixedStatistics struct {
	stats *riskmodel.Statistics
}

func (f *fixedStatistics) Build(ctx context.Context, isins []string, lookbackDays int) (*riskmodel.Statistics, error) {
	return f.stats, nil
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "runs.db"),
		Name: "runs",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runs, err := selection.NewRunRepository(db, zerolog.Nop())
	require.NoError(t, err)

	lister := &fixedLister{
		securities: []universe.Security{
			{ISIN: "US0000000001", Symbol: "AAA", Active: true},
			{ISIN: "US0000000002", Symbol: "BBB", Active: true},
		},
	}
	stats := &fixedStatistics{
		stats: &riskmodel.Statistics{
			ISINs:       []string{"US0000000001", "US0000000002"},
			MeanReturns: []float64{0.03, 0.07},
			Covariance: [][]float64{
				{0.02, 0.0},
				{0.0, 0.02},
			},
			Observations: 20,
		},
	}
	defaults := selection.Defaults{
		LambdaRisk:   0.5,
		Cardinality:  1,
		LookbackDays: 30,
		Solver:       "exhaustive",
	}
	svc := selection.NewService(lister, stats, runs, defaults, zerolog.Nop())

	handler := NewHandler(svc, runs, zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})
	return r
}

func TestHandleRunSelection(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/selection/", bytes.NewBufferString(`{"cardinality": 1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data selection.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.ID)
	assert.Equal(t, "exhaustive", resp.Data.Solver)
	assert.Equal(t, []string{"US0000000002"}, resp.Data.SelectedISINs())
	assert.InDelta(t, -0.06, resp.Data.Objective, 1e-9)
}

func TestHandleRunSelectionEmptyBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/selection/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleRunSelectionInvalidParams(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/selection/", bytes.NewBufferString(`{"lambda_risk": -2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetLatestAndByID(t *testing.T) {
	router := newTestRouter(t)

	// Empty store.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/selection/latest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Create a run.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/selection/", bytes.NewBufferString(`{}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var created struct {
		Data selection.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/selection/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var latest struct {
		Data selection.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, created.Data.ID, latest.Data.ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/selection/"+created.Data.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/selection/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListRuns(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/selection/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Runs  []selection.RunSummary `json:"runs"`
			Count int                    `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Data.Count)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/selection/", bytes.NewBufferString(`{}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/selection/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Count)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/selection/runs?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePreviewModel(t *testing.T) {
	router := newTestRouter(t)

	body := `{
		"mean_returns": [0.03, 0.07],
		"covariance": [[0.02, 0.01], [0.01, 0.03]],
		"lambda_risk": 0.5,
		"cardinality": 1
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/qubo/preview", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			NumVariables int                `json:"num_variables"`
			NumEntries   int                `json:"num_entries"`
			Coefficients []CoefficientEntry `json:"coefficients"`
			Constraint   struct {
				Coefficients []float64 `json:"coefficients"`
				Target       int       `json:"target"`
			} `json:"constraint"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 2, resp.Data.NumVariables)
	assert.Equal(t, 3, resp.Data.NumEntries)
	require.Len(t, resp.Data.Coefficients, 3)

	// Sorted (0,0), (0,1), (1,1).
	assert.Equal(t, [2]int{0, 0}, [2]int{resp.Data.Coefficients[0].I, resp.Data.Coefficients[0].J})
	assert.InDelta(t, -0.02, resp.Data.Coefficients[0].Value, 1e-12)
	assert.Equal(t, [2]int{0, 1}, [2]int{resp.Data.Coefficients[1].I, resp.Data.Coefficients[1].J})
	assert.InDelta(t, 0.01, resp.Data.Coefficients[1].Value, 1e-12)
	assert.Equal(t, [2]int{1, 1}, [2]int{resp.Data.Coefficients[2].I, resp.Data.Coefficients[2].J})
	assert.InDelta(t, -0.055, resp.Data.Coefficients[2].Value, 1e-12)

	assert.Equal(t, []float64{1, 1}, resp.Data.Constraint.Coefficients)
	assert.Equal(t, 1, resp.Data.Constraint.Target)
}

func TestHandlePreviewModelValidation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"dimension mismatch", `{"mean_returns": [0.1, 0.2], "covariance": [[0.1]], "lambda_risk": 0.5}`},
		{"non-positive lambda", `{"mean_returns": [0.1], "covariance": [[0.1]], "lambda_risk": 0}`},
		{"bad cardinality", `{"mean_returns": [0.1], "covariance": [[0.1]], "lambda_risk": 0.5, "cardinality": 2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/qubo/preview", bytes.NewBufferString(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// Package selection orchestrates portfolio selection runs: universe ->
// return statistics -> QUBO build -> solver -> persisted result.
package selection

import (
	"time"

	"github.com/aristath/qfolio/internal/modules/riskmodel"
)

// RunRequest parameterizes a selection run. Zero values fall back to the
// service defaults.
type RunRequest struct {
	// ISINs restricts the run to an explicit universe. Empty means all
	// active securities.
	ISINs []string `json:"isins,omitempty"`

	// LambdaRisk is the risk-aversion weight on the covariance term.
	LambdaRisk float64 `json:"lambda_risk,omitempty"`

	// Cardinality is the exact number of assets to select.
	Cardinality int `json:"cardinality,omitempty"`

	// LookbackDays bounds the price history window.
	LookbackDays int `json:"lookback_days,omitempty"`

	// Solver names the solver to use (exhaustive, annealing, relaxation,
	// auto).
	Solver string `json:"solver,omitempty"`
}

// AssetResult is one asset's outcome in a run.
type AssetResult struct {
	ISIN       string  `json:"isin" msgpack:"isin"`
	Symbol     string  `json:"symbol,omitempty" msgpack:"symbol"`
	Selected   bool    `json:"selected" msgpack:"selected"`
	MeanReturn float64 `json:"mean_return" msgpack:"mean_return"`
}

// Run is a completed selection run.
type Run struct {
	ID        string    `json:"id" msgpack:"id"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`

	// Inputs, after defaults were applied.
	LambdaRisk   float64 `json:"lambda_risk" msgpack:"lambda_risk"`
	Cardinality  int     `json:"cardinality" msgpack:"cardinality"`
	LookbackDays int     `json:"lookback_days" msgpack:"lookback_days"`

	// Outcome.
	Solver       string                   `json:"solver" msgpack:"solver"`
	Objective    float64                  `json:"objective" msgpack:"objective"`
	Evaluations  int                      `json:"evaluations" msgpack:"evaluations"`
	Observations int                      `json:"observations" msgpack:"observations"`
	Assets       []AssetResult            `json:"assets" msgpack:"assets"`
	Dropped      []riskmodel.DroppedAsset `json:"dropped,omitempty" msgpack:"dropped"`
	DurationMS   int64                    `json:"duration_ms" msgpack:"duration_ms"`
}

// SelectedISINs returns the ISINs chosen by the run, in universe order.
func (r *Run) SelectedISINs() []string {
	selected := make([]string, 0, r.Cardinality)
	for _, a := range r.Assets {
		if a.Selected {
			selected = append(selected, a.ISIN)
		}
	}
	return selected
}

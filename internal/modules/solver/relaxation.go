package solver

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/aristath/qfolio/internal/modules/qubo"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// relaxationPenaltyWeight scales the quadratic penalty that pulls the
// continuous weight sum toward the cardinality target.
const relaxationPenaltyWeight = 1000.0

// Relaxation solves the continuous relaxation of the QUBO with a penalty
// method and rounds the result to the k largest weights. Heuristic: the
// rounding step can land off the true optimum, but the final objective is
// always re-evaluated exactly on the rounded selection.
type Relaxation struct {
	log zerolog.Logger
}

// NewRelaxation creates a continuous-relaxation solver.
func NewRelaxation(log zerolog.Logger) *Relaxation {
	return &Relaxation{
		log: log.With().Str("component", "solver_relaxation").Logger(),
	}
}

// Name implements Solver.
func (r *Relaxation) Name() string {
	return NameRelaxation
}

// Solve implements Solver.
func (r *Relaxation) Solve(ctx context.Context, model *qubo.Model, constraint qubo.CardinalityConstraint) (Result, error) {
	if err := validate(model, constraint); err != nil {
		return Result{}, err
	}
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	n := model.NumVariables()
	k := constraint.Target
	target := float64(k)

	// Assemble the dense symmetric quadratic form once. The model stores the
	// folded coefficient for each unordered pair, which is exactly the full
	// x_i x_j weight in the continuous objective.
	linear := make([]float64, n)
	quad := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		linear[i] = model.Linear(i)
		for j := i + 1; j < n; j++ {
			quad.SetSym(i, j, model.Quadratic(i, j))
		}
	}

	objective := func(x []float64) float64 {
		xp := projectToUnitBox(x)

		var value float64
		for i := 0; i < n; i++ {
			value += linear[i] * xp[i]
			for j := i + 1; j < n; j++ {
				value += quad.At(i, j) * xp[i] * xp[j]
			}
		}

		sum := 0.0
		for i := 0; i < n; i++ {
			sum += xp[i]
		}
		value += relaxationPenaltyWeight * (sum - target) * (sum - target)

		return value
	}

	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, x []float64) {
			xp := projectToUnitBox(x)

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xp[i]
			}

			for i := 0; i < n; i++ {
				grad[i] = linear[i]
				for j := 0; j < n; j++ {
					if j != i {
						grad[i] += quad.At(i, j) * xp[j]
					}
				}
				grad[i] += 2 * relaxationPenaltyWeight * (sum - target)
			}
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = target / float64(n)
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return Result{}, fmt.Errorf("relaxation optimization failed: %w", err)
		}
	}

	successStatuses := map[optimize.Status]bool{
		optimize.Success:             true,
		optimize.GradientThreshold:   true,
		optimize.FunctionConvergence: true,
	}
	if !successStatuses[result.Status] {
		return Result{}, fmt.Errorf("relaxation did not converge: status=%v", result.Status)
	}

	// Round: keep the k largest relaxed weights.
	weights := projectToUnitBox(result.X)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return weights[order[a]] > weights[order[b]]
	})

	selection := make([]bool, n)
	for _, idx := range order[:k] {
		selection[idx] = true
	}

	value, err := model.Evaluate(selection)
	if err != nil {
		return Result{}, err
	}

	r.log.Debug().
		Int("n", n).
		Int("k", k).
		Int("func_evaluations", result.FuncEvaluations).
		Float64("objective", value).
		Msg("Relaxation rounding complete")

	return Result{
		Selection:   selection,
		Objective:   value,
		Solver:      r.Name(),
		Evaluations: result.FuncEvaluations,
	}, nil
}

// projectToUnitBox clamps each weight into [0,1].
func projectToUnitBox(x []float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(0.0, math.Min(1.0, x[i]))
	}
	return proj
}

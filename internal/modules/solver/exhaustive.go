package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/qfolio/internal/modules/qubo"
	"github.com/rs/zerolog"
)

// Exhaustive enumerates every k-subset of the universe and keeps the best.
// Exact, deterministic, and only viable for small universes.
type Exhaustive struct {
	maxAssets int
	log       zerolog.Logger
}

// NewExhaustive creates an exact enumeration solver with the default
// universe-size cap.
func NewExhaustive(log zerolog.Logger) *Exhaustive {
	return &Exhaustive{
		maxAssets: ExhaustiveMaxAssets,
		log:       log.With().Str("component", "solver_exhaustive").Logger(),
	}
}

// Name implements Solver.
func (e *Exhaustive) Name() string {
	return NameExhaustive
}

// Solve implements Solver. It walks all C(n,k) subsets in combinatorial
// order, so ties resolve to the lexicographically first subset.
func (e *Exhaustive) Solve(ctx context.Context, model *qubo.Model, constraint qubo.CardinalityConstraint) (Result, error) {
	if err := validate(model, constraint); err != nil {
		return Result{}, err
	}

	n := model.NumVariables()
	k := constraint.Target
	if n > e.maxAssets {
		return Result{}, fmt.Errorf("universe size %d exceeds exhaustive solver cap %d", n, e.maxAssets)
	}

	// Current subset as sorted indices, starting at {0, 1, ..., k-1}.
	indices := make([]int, k)
	for i := range indices {
		indices[i] = i
	}

	best := Result{Objective: math.Inf(1), Solver: e.Name()}
	evaluations := 0

	for {
		if evaluations%1024 == 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			default:
			}
		}

		x := make([]bool, n)
		for _, idx := range indices {
			x[idx] = true
		}

		value, err := model.Evaluate(x)
		if err != nil {
			return Result{}, err
		}
		evaluations++

		if value < best.Objective {
			best.Objective = value
			best.Selection = x
		}

		if !nextCombination(indices, n) {
			break
		}
	}

	best.Evaluations = evaluations
	e.log.Debug().
		Int("n", n).
		Int("k", k).
		Int("evaluations", evaluations).
		Float64("objective", best.Objective).
		Msg("Exhaustive search complete")

	return best, nil
}

// nextCombination advances sorted indices to the next k-subset of [0,n).
// Returns false once the last combination has been visited.
func nextCombination(indices []int, n int) bool {
	k := len(indices)
	for i := k - 1; i >= 0; i-- {
		if indices[i] < n-k+i {
			indices[i]++
			for j := i + 1; j < k; j++ {
				indices[j] = indices[j-1] + 1
			}
			return true
		}
	}
	return false
}

// Package solver provides pluggable binary quadratic solvers.
//
// A solver consumes a qubo.Model plus its cardinality constraint and
// produces a binary selection vector. The quantum optimizer slot this
// fills is deliberately behind an interface: a classical exact or heuristic
// search has an identical contract, since the QUBO structure itself is
// solver-agnostic.
package solver

import (
	"context"
	"fmt"

	"github.com/aristath/qfolio/internal/modules/qubo"
	"github.com/rs/zerolog"
)

// Solver names accepted by ForName.
const (
	NameExhaustive = "exhaustive"
	NameAnnealing  = "annealing"
	NameRelaxation = "relaxation"
	NameAuto       = "auto"
)

// ExhaustiveMaxAssets caps the universe size for exact enumeration.
// Beyond this the subset count makes exhaustive search impractical.
const ExhaustiveMaxAssets = 24

// Result is the outcome of a solve: a binary selection vector over the
// model's variables, the objective value under the model's folded pair
// convention, and solver metadata.
type Result struct {
	Selection   []bool  `json:"selection"`
	Objective   float64 `json:"objective"`
	Solver      string  `json:"solver"`
	Evaluations int     `json:"evaluations"`
}

// SelectedIndices returns the indices of selected variables in order.
func (r Result) SelectedIndices() []int {
	indices := make([]int, 0, len(r.Selection))
	for i, selected := range r.Selection {
		if selected {
			indices = append(indices, i)
		}
	}
	return indices
}

// Solver finds a low-objective binary selection satisfying the constraint.
type Solver interface {
	// Name identifies the solver in results and configuration.
	Name() string

	// Solve searches for the selection minimizing the model objective
	// subject to the cardinality constraint. Implementations honor
	// context cancellation between evaluation batches.
	Solve(ctx context.Context, model *qubo.Model, constraint qubo.CardinalityConstraint) (Result, error)
}

// ForName builds the solver registered under the given name. The "auto"
// name picks exact enumeration when the universe is small enough for it
// and simulated annealing otherwise.
func ForName(name string, numAssets int, log zerolog.Logger) (Solver, error) {
	switch name {
	case NameExhaustive:
		return NewExhaustive(log), nil
	case NameAnnealing:
		return NewAnnealer(DefaultAnnealerConfig(), log), nil
	case NameRelaxation:
		return NewRelaxation(log), nil
	case NameAuto, "":
		if numAssets <= ExhaustiveMaxAssets {
			return NewExhaustive(log), nil
		}
		return NewAnnealer(DefaultAnnealerConfig(), log), nil
	default:
		return nil, fmt.Errorf("unknown solver: %s", name)
	}
}

// validate checks that a model and constraint describe the same variables.
func validate(model *qubo.Model, constraint qubo.CardinalityConstraint) error {
	if model == nil {
		return fmt.Errorf("%w: nil model", qubo.ErrInvalidParameter)
	}
	if constraint.N != model.NumVariables() {
		return fmt.Errorf("%w: constraint over %d variables, model has %d",
			qubo.ErrDimensionMismatch, constraint.N, model.NumVariables())
	}
	return nil
}

// Package qubo builds Quadratic Unconstrained Binary Optimization models
// for mean-variance portfolio selection.
//
// The objective encoded is
//
//	lambda * sum_ij cov[i][j] x_i x_j  -  sum_i mu[i] x_i
//
// over binary decision variables x. Coefficients are stored once per
// unordered index pair {i,j}: the diagonal entry for variable i carries the
// linear term lambda*cov[i][i] - mu[i], and the off-diagonal entry for
// i != j carries 2*lambda*cov[i][j], folding both ordered contributions of
// the symmetric covariance matrix. Consumers must therefore evaluate each
// unordered pair exactly once (see Model.Evaluate).
package qubo

import (
	"errors"
	"fmt"
	"math"
)

// Error taxonomy. Both are fail-fast: no partial model is ever returned.
var (
	// ErrDimensionMismatch indicates the mean-return vector or covariance
	// matrix shape is inconsistent with the declared asset count.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidParameter indicates a non-positive risk weight, a
	// non-positive asset count, or a cardinality target outside [1, n].
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Pair is a normalized unordered index pair. I <= J always holds.
// Pairs with I == J address linear (diagonal) coefficients.
type Pair struct {
	I int
	J int
}

// NewPair normalizes an index pair so that I <= J.
func NewPair(i, j int) Pair {
	if i > j {
		i, j = j, i
	}
	return Pair{I: i, J: j}
}

// Model is an immutable QUBO coefficient structure over n binary variables.
// It holds exactly n*(n+1)/2 coefficients, one per unordered index pair
// including self-pairs. Build a fresh instance to change inputs; models are
// never mutated after construction.
type Model struct {
	n            int
	coefficients map[Pair]float64
}

// NumVariables returns the number of binary decision variables.
func (m *Model) NumVariables() int {
	return m.n
}

// Size returns the number of stored coefficients, always n*(n+1)/2.
func (m *Model) Size() int {
	return len(m.coefficients)
}

// Coefficient returns the stored coefficient for the unordered pair {i,j}.
// Index order does not matter.
func (m *Model) Coefficient(i, j int) float64 {
	return m.coefficients[NewPair(i, j)]
}

// Linear returns the linear coefficient for variable i (the diagonal entry).
func (m *Model) Linear(i int) float64 {
	return m.coefficients[Pair{I: i, J: i}]
}

// Quadratic returns the pairwise coefficient for distinct variables i and j.
// The value already folds both ordered covariance contributions.
func (m *Model) Quadratic(i, j int) float64 {
	if i == j {
		return 0
	}
	return m.coefficients[NewPair(i, j)]
}

// Coefficients returns a copy of the coefficient map. The model itself
// stays immutable; callers may do what they like with the copy.
func (m *Model) Coefficients() map[Pair]float64 {
	out := make(map[Pair]float64, len(m.coefficients))
	for p, c := range m.coefficients {
		out[p] = c
	}
	return out
}

// Evaluate computes the objective value for a binary selection vector,
// counting every unordered pair exactly once per the storage convention.
func (m *Model) Evaluate(x []bool) (float64, error) {
	if len(x) != m.n {
		return 0, fmt.Errorf("%w: selection vector length %d, expected %d", ErrDimensionMismatch, len(x), m.n)
	}

	var value float64
	for p, c := range m.coefficients {
		if x[p.I] && x[p.J] {
			value += c
		}
	}
	return value, nil
}

// Build constructs the QUBO model for n assets from a mean-return vector,
// a covariance matrix and a risk-aversion weight. It is a pure function:
// inputs are never mutated and the result is fully formed in one pass.
//
// The risk and return contributions merge additively per pair, so the
// order in which they are accumulated cannot affect the result.
func Build(meanReturns []float64, covariance [][]float64, lambdaRisk float64, n int) (*Model, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: asset count %d, must be >= 1", ErrInvalidParameter, n)
	}
	if lambdaRisk <= 0 {
		return nil, fmt.Errorf("%w: risk aversion weight %g, must be > 0", ErrInvalidParameter, lambdaRisk)
	}
	if len(meanReturns) != n {
		return nil, fmt.Errorf("%w: mean returns length %d, expected %d", ErrDimensionMismatch, len(meanReturns), n)
	}
	if len(covariance) != n {
		return nil, fmt.Errorf("%w: covariance has %d rows, expected %d", ErrDimensionMismatch, len(covariance), n)
	}
	for i := range covariance {
		if len(covariance[i]) != n {
			return nil, fmt.Errorf("%w: covariance row %d has %d columns, expected %d", ErrDimensionMismatch, i, len(covariance[i]), n)
		}
	}

	coefficients := make(map[Pair]float64, n*(n+1)/2)
	for i := 0; i < n; i++ {
		// Diagonal: risk term minus expected return.
		coefficients[Pair{I: i, J: i}] = lambdaRisk*covariance[i][i] - meanReturns[i]

		// Off-diagonal: both ordered contributions folded into one entry.
		for j := i + 1; j < n; j++ {
			coefficients[Pair{I: i, J: j}] = 2 * lambdaRisk * covariance[i][j]
		}
	}

	for p, c := range coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: non-finite coefficient %g for pair {%d,%d}", ErrInvalidParameter, c, p.I, p.J)
		}
	}

	return &Model{n: n, coefficients: coefficients}, nil
}

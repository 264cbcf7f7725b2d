package qubo

import "fmt"

// CardinalityConstraint is the single linear equality sum(x_i) = Target over
// all n variables with unit coefficients. It travels alongside a Model to
// whatever solver consumes the pair.
type CardinalityConstraint struct {
	N      int
	Target int
}

// NewCardinalityConstraint builds the equality constraint sum(x_i) = k.
// k must lie in [1, n].
func NewCardinalityConstraint(n, k int) (CardinalityConstraint, error) {
	if n < 1 {
		return CardinalityConstraint{}, fmt.Errorf("%w: asset count %d, must be >= 1", ErrInvalidParameter, n)
	}
	if k < 1 || k > n {
		return CardinalityConstraint{}, fmt.Errorf("%w: cardinality target %d outside [1, %d]", ErrInvalidParameter, k, n)
	}
	return CardinalityConstraint{N: n, Target: k}, nil
}

// Coefficients returns the unit coefficient vector of the constraint.
func (c CardinalityConstraint) Coefficients() []float64 {
	coeffs := make([]float64, c.N)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	return coeffs
}

// Satisfied reports whether a selection vector meets the equality.
func (c CardinalityConstraint) Satisfied(x []bool) bool {
	if len(x) != c.N {
		return false
	}
	count := 0
	for _, selected := range x {
		if selected {
			count++
		}
	}
	return count == c.Target
}

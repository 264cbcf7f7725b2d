package solver

import (
	"context"
	"testing"

	"github.com/aristath/qfolio/internal/modules/qubo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// buildSeparableModel returns a model whose optimum is easy to reason about:
// no off-diagonal coupling, so the best k-subset is just the k most
// negative diagonal entries.
func buildSeparableModel(t *testing.T) *qubo.Model {
	t.Helper()

	// diagonals: -0.09, +0.01, -0.07, +0.01
	meanReturns := []float64{0.10, 0.0, 0.08, 0.0}
	covariance := [][]float64{
		{0.01, 0, 0, 0},
		{0, 0.01, 0, 0},
		{0, 0, 0.01, 0},
		{0, 0, 0, 0.01},
	}

	model, err := qubo.Build(meanReturns, covariance, 1.0, 4)
	require.NoError(t, err)
	return model
}

func buildCoupledModel(t *testing.T) *qubo.Model {
	t.Helper()

	meanReturns := []float64{0.01, 0.02}
	covariance := [][]float64{
		{0.04, 0.01},
		{0.01, 0.09},
	}

	model, err := qubo.Build(meanReturns, covariance, 1.0, 2)
	require.NoError(t, err)
	return model
}

func TestForName(t *testing.T) {
	testCases := []struct {
		name      string
		solver    string
		numAssets int
		expected  string
		ok        bool
	}{
		{"exhaustive", NameExhaustive, 5, NameExhaustive, true},
		{"annealing", NameAnnealing, 5, NameAnnealing, true},
		{"relaxation", NameRelaxation, 5, NameRelaxation, true},
		{"auto small universe", NameAuto, 10, NameExhaustive, true},
		{"auto large universe", NameAuto, 100, NameAnnealing, true},
		{"empty defaults to auto", "", 10, NameExhaustive, true},
		{"unknown", "quantum", 10, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ForName(tc.solver, tc.numAssets, testLogger())
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, s.Name())
		})
	}
}

func TestExhaustive_TwoAssetPickOne(t *testing.T) {
	model := buildCoupledModel(t)
	constraint, err := qubo.NewCardinalityConstraint(2, 1)
	require.NoError(t, err)

	result, err := NewExhaustive(testLogger()).Solve(context.Background(), model, constraint)
	require.NoError(t, err)

	// diagonal(0)=0.03 < diagonal(1)=0.07
	assert.Equal(t, []bool{true, false}, result.Selection)
	assert.InDelta(t, 0.03, result.Objective, 1e-12)
	assert.Equal(t, 2, result.Evaluations)
	assert.Equal(t, NameExhaustive, result.Solver)
}

func TestExhaustive_SeparableOptimum(t *testing.T) {
	model := buildSeparableModel(t)
	constraint, err := qubo.NewCardinalityConstraint(4, 2)
	require.NoError(t, err)

	result, err := NewExhaustive(testLogger()).Solve(context.Background(), model, constraint)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false, true, false}, result.Selection)
	assert.InDelta(t, -0.16, result.Objective, 1e-12)
	assert.Equal(t, 6, result.Evaluations, "C(4,2) subsets")
}

func TestExhaustive_UniverseCap(t *testing.T) {
	n := ExhaustiveMaxAssets + 1
	meanReturns := make([]float64, n)
	covariance := make([][]float64, n)
	for i := range covariance {
		covariance[i] = make([]float64, n)
		covariance[i][i] = 0.01
	}
	model, err := qubo.Build(meanReturns, covariance, 1.0, n)
	require.NoError(t, err)
	constraint, err := qubo.NewCardinalityConstraint(n, 2)
	require.NoError(t, err)

	_, err = NewExhaustive(testLogger()).Solve(context.Background(), model, constraint)
	assert.Error(t, err)
}

func TestExhaustive_ContextCancellation(t *testing.T) {
	model := buildSeparableModel(t)
	constraint, err := qubo.NewCardinalityConstraint(4, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewExhaustive(testLogger()).Solve(ctx, model, constraint)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextCombination(t *testing.T) {
	indices := []int{0, 1}
	var seen [][]int
	for {
		snapshot := make([]int, len(indices))
		copy(snapshot, indices)
		seen = append(seen, snapshot)
		if !nextCombination(indices, 4) {
			break
		}
	}

	expected := [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	assert.Equal(t, expected, seen)
}

func TestAnnealer_MatchesExhaustive(t *testing.T) {
	model := buildSeparableModel(t)
	constraint, err := qubo.NewCardinalityConstraint(4, 2)
	require.NoError(t, err)

	exact, err := NewExhaustive(testLogger()).Solve(context.Background(), model, constraint)
	require.NoError(t, err)

	annealed, err := NewAnnealer(DefaultAnnealerConfig(), testLogger()).Solve(context.Background(), model, constraint)
	require.NoError(t, err)

	assert.InDelta(t, exact.Objective, annealed.Objective, 1e-9)
	assert.Equal(t, exact.Selection, annealed.Selection)
}

func TestAnnealer_RespectsCardinality(t *testing.T) {
	model := buildSeparableModel(t)
	constraint, err := qubo.NewCardinalityConstraint(4, 3)
	require.NoError(t, err)

	result, err := NewAnnealer(DefaultAnnealerConfig(), testLogger()).Solve(context.Background(), model, constraint)
	require.NoError(t, err)

	assert.True(t, constraint.Satisfied(result.Selection))
}

func TestAnnealer_FullCardinalityShortCircuits(t *testing.T) {
	model := buildCoupledModel(t)
	constraint, err := qubo.NewCardinalityConstraint(2, 2)
	require.NoError(t, err)

	result, err := NewAnnealer(DefaultAnnealerConfig(), testLogger()).Solve(context.Background(), model, constraint)
	require.NoError(t, err)

	// Only one feasible state when k == n.
	assert.Equal(t, []bool{true, true}, result.Selection)
	assert.InDelta(t, 0.03+0.07+0.02, result.Objective, 1e-12)
}

func TestAnnealer_Reproducible(t *testing.T) {
	model := buildSeparableModel(t)
	constraint, err := qubo.NewCardinalityConstraint(4, 2)
	require.NoError(t, err)

	cfg := DefaultAnnealerConfig()
	first, err := NewAnnealer(cfg, testLogger()).Solve(context.Background(), model, constraint)
	require.NoError(t, err)
	second, err := NewAnnealer(cfg, testLogger()).Solve(context.Background(), model, constraint)
	require.NoError(t, err)

	assert.Equal(t, first.Selection, second.Selection)
	assert.Equal(t, first.Objective, second.Objective)
}

func TestAnnealer_ContextCancellation(t *testing.T) {
	model := buildSeparableModel(t)
	constraint, err := qubo.NewCardinalityConstraint(4, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewAnnealer(DefaultAnnealerConfig(), testLogger()).Solve(ctx, model, constraint)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRelaxation_SeparableOptimum(t *testing.T) {
	model := buildSeparableModel(t)
	constraint, err := qubo.NewCardinalityConstraint(4, 2)
	require.NoError(t, err)

	result, err := NewRelaxation(testLogger()).Solve(context.Background(), model, constraint)
	require.NoError(t, err)

	assert.True(t, constraint.Satisfied(result.Selection))
	assert.Equal(t, []bool{true, false, true, false}, result.Selection)
	assert.InDelta(t, -0.16, result.Objective, 1e-9)
}

func TestRelaxation_ObjectiveIsExact(t *testing.T) {
	model := buildCoupledModel(t)
	constraint, err := qubo.NewCardinalityConstraint(2, 1)
	require.NoError(t, err)

	result, err := NewRelaxation(testLogger()).Solve(context.Background(), model, constraint)
	require.NoError(t, err)

	// Whatever the rounding picked, the reported objective must equal the
	// exact model evaluation of the reported selection.
	exact, err := model.Evaluate(result.Selection)
	require.NoError(t, err)
	assert.Equal(t, exact, result.Objective)
}

func TestValidate_MismatchedConstraint(t *testing.T) {
	model := buildCoupledModel(t)
	constraint, err := qubo.NewCardinalityConstraint(3, 2)
	require.NoError(t, err)

	_, err = NewExhaustive(testLogger()).Solve(context.Background(), model, constraint)
	assert.ErrorIs(t, err, qubo.ErrDimensionMismatch)

	_, err = NewAnnealer(DefaultAnnealerConfig(), testLogger()).Solve(context.Background(), model, constraint)
	assert.ErrorIs(t, err, qubo.ErrDimensionMismatch)

	_, err = NewRelaxation(testLogger()).Solve(context.Background(), model, constraint)
	assert.ErrorIs(t, err, qubo.ErrDimensionMismatch)
}

func TestResult_SelectedIndices(t *testing.T) {
	result := Result{Selection: []bool{true, false, true, true}}
	assert.Equal(t, []int{0, 2, 3}, result.SelectedIndices())
}

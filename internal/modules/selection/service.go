package selection

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/qfolio/internal/modules/qubo"
	"github.com/aristath/qfolio/internal/modules/riskmodel"
	"github.com/aristath/qfolio/internal/modules/solver"
	"github.com/aristath/qfolio/internal/modules/universe"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SecurityLister supplies the active universe.
// universe.SecurityRepository satisfies it.
type SecurityLister interface {
	ListActive() ([]universe.Security, error)
}

// StatisticsBuilder produces return statistics for a universe.
// riskmodel.Builder satisfies it.
type StatisticsBuilder interface {
	Build(ctx context.Context, isins []string, lookbackDays int) (*riskmodel.Statistics, error)
}

// Defaults are applied to RunRequest fields left at their zero value.
type Defaults struct {
	LambdaRisk   float64
	Cardinality  int
	LookbackDays int
	Solver       string
}

// Service runs portfolio selections end to end.
type Service struct {
	securities SecurityLister
	statistics StatisticsBuilder
	runs       *RunRepository
	defaults   Defaults
	log        zerolog.Logger
}

// NewService creates a selection service. runs may be nil, in which case
// results are returned but not persisted.
func NewService(
	securities SecurityLister,
	statistics StatisticsBuilder,
	runs *RunRepository,
	defaults Defaults,
	log zerolog.Logger,
) *Service {
	return &Service{
		securities: securities,
		statistics: statistics,
		runs:       runs,
		defaults:   defaults,
		log:        log.With().Str("component", "selection").Logger(),
	}
}

// Run executes a selection: resolve the universe, build return statistics,
// construct the QUBO, solve it, and persist the result.
func (s *Service) Run(ctx context.Context, req RunRequest) (*Run, error) {
	started := time.Now()
	s.applyDefaults(&req)

	if req.LambdaRisk <= 0 {
		return nil, fmt.Errorf("%w: lambda_risk must be positive, got %v", qubo.ErrInvalidParameter, req.LambdaRisk)
	}
	if req.Cardinality < 1 {
		return nil, fmt.Errorf("%w: cardinality must be at least 1, got %d", qubo.ErrInvalidParameter, req.Cardinality)
	}

	isins := req.ISINs
	symbols := make(map[string]string)
	if len(isins) == 0 {
		active, err := s.securities.ListActive()
		if err != nil {
			return nil, fmt.Errorf("failed to list active securities: %w", err)
		}
		isins = make([]string, 0, len(active))
		for _, sec := range active {
			isins = append(isins, sec.ISIN)
			symbols[sec.ISIN] = sec.Symbol
		}
	}
	if len(isins) == 0 {
		return nil, fmt.Errorf("no securities in universe")
	}

	stats, err := s.statistics.Build(ctx, isins, req.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to build return statistics: %w", err)
	}

	n := len(stats.ISINs)
	if req.Cardinality > n {
		return nil, fmt.Errorf("%w: cardinality %d exceeds usable universe of %d assets",
			qubo.ErrInvalidParameter, req.Cardinality, n)
	}

	model, err := qubo.Build(stats.MeanReturns, stats.Covariance, req.LambdaRisk, n)
	if err != nil {
		return nil, fmt.Errorf("failed to build QUBO model: %w", err)
	}
	constraint, err := qubo.NewCardinalityConstraint(n, req.Cardinality)
	if err != nil {
		return nil, err
	}

	slv, err := solver.ForName(req.Solver, n, s.log)
	if err != nil {
		return nil, err
	}

	result, err := slv.Solve(ctx, model, constraint)
	if err != nil {
		return nil, fmt.Errorf("solver %s failed: %w", slv.Name(), err)
	}

	assets := make([]AssetResult, n)
	for i, isin := range stats.ISINs {
		assets[i] = AssetResult{
			ISIN:       isin,
			Symbol:     symbols[isin],
			Selected:   result.Selection[i],
			MeanReturn: stats.MeanReturns[i],
		}
	}

	run := &Run{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now().UTC(),
		LambdaRisk:   req.LambdaRisk,
		Cardinality:  req.Cardinality,
		LookbackDays: req.LookbackDays,
		Solver:       result.Solver,
		Objective:    result.Objective,
		Evaluations:  result.Evaluations,
		Observations: stats.Observations,
		Assets:       assets,
		Dropped:      stats.Dropped,
		DurationMS:   time.Since(started).Milliseconds(),
	}

	if s.runs != nil {
		if err := s.runs.Save(run); err != nil {
			return nil, fmt.Errorf("failed to persist selection run: %w", err)
		}
	}

	s.log.Info().
		Str("run_id", run.ID).
		Str("solver", run.Solver).
		Int("universe", n).
		Int("cardinality", run.Cardinality).
		Float64("objective", run.Objective).
		Int64("duration_ms", run.DurationMS).
		Msg("Selection run completed")

	return run, nil
}

func (s *Service) applyDefaults(req *RunRequest) {
	if req.LambdaRisk == 0 {
		req.LambdaRisk = s.defaults.LambdaRisk
	}
	if req.Cardinality == 0 {
		req.Cardinality = s.defaults.Cardinality
	}
	if req.LookbackDays == 0 {
		req.LookbackDays = s.defaults.LookbackDays
	}
	if req.Solver == "" {
		req.Solver = s.defaults.Solver
	}
}

package scheduler

import (
	"context"
	"time"

	"github.com/aristath/qfolio/internal/modules/selection"
	"github.com/rs/zerolog"
)

// selectionJobTimeout bounds a scheduled run; annealing on large
// universes should finish well within it.
const selectionJobTimeout = 10 * time.Minute

// SelectionJob re-runs portfolio selection with the configured defaults.
type SelectionJob struct {
	service *selection.Service
	log     zerolog.Logger
}

// NewSelectionJob creates a selection job.
func NewSelectionJob(service *selection.Service, log zerolog.Logger) *SelectionJob {
	return &SelectionJob{
		service: service,
		log:     log.With().Str("job", "selection").Logger(),
	}
}

// Name returns the job name
func (j *SelectionJob) Name() string {
	return "selection"
}

// Run executes one selection with default parameters.
func (j *SelectionJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), selectionJobTimeout)
	defer cancel()

	run, err := j.service.Run(ctx, selection.RunRequest{})
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", run.ID).
		Strs("selected", run.SelectedISINs()).
		Float64("objective", run.Objective).
		Msg("Scheduled selection completed")
	return nil
}

package selection

import (
	"fmt"

	"github.com/aristath/qfolio/internal/database"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// RunSummary is the queryable slice of a run, without the full payload.
type RunSummary struct {
	ID          string  `json:"id"`
	CreatedAt   string  `json:"created_at"`
	Solver      string  `json:"solver"`
	Cardinality int     `json:"cardinality"`
	NumAssets   int     `json:"num_assets"`
	Objective   float64 `json:"objective"`
}

// RunRepository persists selection runs. Scalar columns cover listing and
// ordering; the full run is msgpack-encoded in a blob column.
type RunRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRunRepository creates the repository and its schema.
func NewRunRepository(db *database.DB, log zerolog.Logger) (*RunRepository, error) {
	r := &RunRepository{
		db:  db,
		log: log.With().Str("component", "run_repository").Logger(),
	}
	if err := r.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to create selection_runs schema: %w", err)
	}
	return r, nil
}

func (r *RunRepository) ensureSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS selection_runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			solver TEXT NOT NULL,
			cardinality INTEGER NOT NULL,
			num_assets INTEGER NOT NULL,
			objective REAL NOT NULL,
			payload BLOB NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_selection_runs_created
		ON selection_runs(created_at DESC)
	`)
	return err
}

// Save stores a completed run.
func (r *RunRepository) Save(run *Run) error {
	payload, err := msgpack.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO selection_runs (id, created_at, solver, cardinality, num_assets, objective, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt.Unix(), run.Solver, run.Cardinality, len(run.Assets), run.Objective, payload)
	if err != nil {
		return fmt.Errorf("failed to store run %s: %w", run.ID, err)
	}

	r.log.Debug().Str("run_id", run.ID).Msg("Stored selection run")
	return nil
}

// Get returns a run by id, or sql.ErrNoRows when absent.
func (r *RunRepository) Get(id string) (*Run, error) {
	var payload []byte
	err := r.db.QueryRow(`SELECT payload FROM selection_runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		return nil, err
	}
	return decodeRun(payload)
}

// Latest returns the most recent run, or sql.ErrNoRows when none exist.
func (r *RunRepository) Latest() (*Run, error) {
	var payload []byte
	err := r.db.QueryRow(`
		SELECT payload FROM selection_runs
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&payload)
	if err != nil {
		return nil, err
	}
	return decodeRun(payload)
}

// List returns run summaries, newest first.
func (r *RunRepository) List(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, datetime(created_at, 'unixepoch'), solver, cardinality, num_assets, objective
		FROM selection_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.Solver, &s.Cardinality, &s.NumAssets, &s.Objective); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Count returns the number of stored runs.
func (r *RunRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM selection_runs`).Scan(&count)
	return count, err
}

func decodeRun(payload []byte) (*Run, error) {
	var run Run
	if err := msgpack.Unmarshal(payload, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run payload: %w", err)
	}
	return &run, nil
}

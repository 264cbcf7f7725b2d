package universe

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// SecurityRepository provides access to the securities table in universe.db.
// Listing preserves insertion order, so the variable ordering of a selection
// run is stable for a fixed universe.
type SecurityRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSecurityRepository creates a repository and ensures its schema exists.
func NewSecurityRepository(db *sql.DB, log zerolog.Logger) (*SecurityRepository, error) {
	repo := &SecurityRepository{
		db:  db,
		log: log.With().Str("component", "security_repository").Logger(),
	}
	if err := repo.ensureSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *SecurityRepository) ensureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS securities (
			isin       TEXT PRIMARY KEY,
			symbol     TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			active     INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_securities_symbol ON securities(symbol);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create securities schema: %w", err)
	}
	return nil
}

// Upsert inserts or updates a security by ISIN.
func (r *SecurityRepository) Upsert(security Security) error {
	if security.ISIN == "" {
		return fmt.Errorf("security ISIN is required")
	}

	query := `
		INSERT INTO securities (isin, symbol, name, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(isin) DO UPDATE SET
			symbol = excluded.symbol,
			name   = excluded.name,
			active = excluded.active
	`
	active := 0
	if security.Active {
		active = 1
	}
	if _, err := r.db.Exec(query, security.ISIN, security.Symbol, security.Name, active); err != nil {
		return fmt.Errorf("failed to upsert security %s: %w", security.ISIN, err)
	}

	r.log.Debug().Str("isin", security.ISIN).Str("symbol", security.Symbol).Msg("Upserted security")
	return nil
}

// Get fetches a security by ISIN. Returns sql.ErrNoRows when absent.
func (r *SecurityRepository) Get(isin string) (*Security, error) {
	query := `SELECT isin, symbol, name, active FROM securities WHERE isin = ?`

	var s Security
	var active int
	err := r.db.QueryRow(query, isin).Scan(&s.ISIN, &s.Symbol, &s.Name, &active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to query security %s: %w", isin, err)
	}
	s.Active = active != 0

	return &s, nil
}

// ListActive returns active securities in insertion order.
func (r *SecurityRepository) ListActive() ([]Security, error) {
	return r.list(`SELECT isin, symbol, name, active FROM securities WHERE active = 1 ORDER BY rowid`)
}

// ListAll returns every security in insertion order.
func (r *SecurityRepository) ListAll() ([]Security, error) {
	return r.list(`SELECT isin, symbol, name, active FROM securities ORDER BY rowid`)
}

func (r *SecurityRepository) list(query string) ([]Security, error) {
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()

	var securities []Security
	for rows.Next() {
		var s Security
		var active int
		if err := rows.Scan(&s.ISIN, &s.Symbol, &s.Name, &active); err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		s.Active = active != 0
		securities = append(securities, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating securities: %w", err)
	}

	return securities, nil
}

// SetActive toggles a security's eligibility without deleting its history.
func (r *SecurityRepository) SetActive(isin string, active bool) error {
	value := 0
	if active {
		value = 1
	}
	result, err := r.db.Exec(`UPDATE securities SET active = ? WHERE isin = ?`, value, isin)
	if err != nil {
		return fmt.Errorf("failed to update security %s: %w", isin, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of security %s: %w", isin, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

package universe

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/qfolio/internal/database"
	"github.com/rs/zerolog"
)

// HistoryDB provides access to historical close prices in history.db.
// Prices are pushed in through the API; this store performs no market-data
// network I/O itself.
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a history accessor and ensures its schema exists.
func NewHistoryDB(db *sql.DB, log zerolog.Logger) (*HistoryDB, error) {
	h := &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
	if err := h.ensureSchema(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *HistoryDB) ensureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS daily_prices (
			isin  TEXT NOT NULL,
			date  INTEGER NOT NULL,
			close REAL NOT NULL,
			PRIMARY KEY (isin, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// IngestPrices stores a batch of daily prices for an ISIN, replacing any
// existing observation on the same date. The whole batch commits atomically.
func (h *HistoryDB) IngestPrices(isin string, prices []DailyPrice) error {
	if isin == "" {
		return fmt.Errorf("ISIN is required")
	}
	if len(prices) == 0 {
		return nil
	}

	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_prices (isin, date, close)
			VALUES (?, ?, ?)
			ON CONFLICT(isin, date) DO UPDATE SET close = excluded.close
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare price insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			dateUnix, err := parseDate(p.Date)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(isin, dateUnix, p.Close); err != nil {
				return fmt.Errorf("failed to insert price %s/%s: %w", isin, p.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.log.Debug().Str("isin", isin).Int("num_prices", len(prices)).Msg("Ingested daily prices")
	return nil
}

// GetDailyPrices fetches close prices for an ISIN in ascending date order.
// A days value of 0 means no window limit.
func (h *HistoryDB) GetDailyPrices(isin string, days int) ([]DailyPrice, error) {
	query := `SELECT date, close FROM daily_prices WHERE isin = ?`
	args := []interface{}{isin}

	if days > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		cutoffUnix := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC).Unix()
		query += ` AND date >= ?`
		args = append(args, cutoffUnix)
	}
	query += ` ORDER BY date ASC`

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		var dateUnix int64
		if err := rows.Scan(&dateUnix, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC().Format("2006-01-02")
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// CountPrices returns the number of stored observations for an ISIN.
func (h *HistoryDB) CountPrices(isin string) (int, error) {
	var count int
	err := h.db.QueryRow(`SELECT COUNT(*) FROM daily_prices WHERE isin = ?`, isin).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count prices for %s: %w", isin, err)
	}
	return count, nil
}

func parseDate(date string) (int64, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", date, err)
	}
	return t.Unix(), nil
}

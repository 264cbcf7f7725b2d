package riskmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/qfolio/internal/database"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultCacheTTL bounds how long computed statistics stay valid; new
// daily prices make older estimates stale within a day.
const DefaultCacheTTL = 24 * time.Hour

// Cache persists computed Statistics in SQLite, msgpack-encoded, keyed
// by the universe plus lookback window.
type Cache struct {
	db  *database.DB
	ttl time.Duration
	log zerolog.Logger
}

// NewCache creates a statistics cache backed by the given database.
func NewCache(db *database.DB, ttl time.Duration, log zerolog.Logger) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "riskmodel_cache").Logger(),
	}
	if err := c.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to create statistics cache schema: %w", err)
	}
	return c, nil
}

func (c *Cache) ensureSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS statistics_cache (
			cache_key TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	return err
}

// cacheKey hashes the sorted universe and lookback so key order does not
// depend on caller ordering.
func cacheKey(isins []string, lookbackDays int) string {
	sorted := make([]string, len(isins))
	copy(sorted, isins)
	sort.Strings(sorted)

	h := sha256.New()
	for _, isin := range sorted {
		h.Write([]byte(isin))
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "lookback:%d", lookbackDays)

	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Get returns cached statistics for the universe, or false when absent
// or expired.
func (c *Cache) Get(isins []string, lookbackDays int) (*Statistics, bool) {
	key := cacheKey(isins, lookbackDays)
	cutoff := time.Now().Add(-c.ttl).Unix()

	var payload []byte
	err := c.db.QueryRow(`
		SELECT payload FROM statistics_cache
		WHERE cache_key = ? AND created_at >= ?
	`, key, cutoff).Scan(&payload)
	if err != nil {
		return nil, false
	}

	var stats Statistics
	if err := msgpack.Unmarshal(payload, &stats); err != nil {
		c.log.Warn().Err(err).Str("cache_key", key).Msg("Failed to decode cached statistics, evicting")
		c.db.Exec(`DELETE FROM statistics_cache WHERE cache_key = ?`, key)
		return nil, false
	}
	return &stats, true
}

// Set stores statistics for the universe, replacing any prior entry.
func (c *Cache) Set(isins []string, lookbackDays int, stats *Statistics) error {
	payload, err := msgpack.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}

	key := cacheKey(isins, lookbackDays)
	_, err = c.db.Exec(`
		INSERT INTO statistics_cache (cache_key, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at
	`, key, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store statistics: %w", err)
	}
	return nil
}

// Prune removes expired entries.
func (c *Cache) Prune() (int64, error) {
	cutoff := time.Now().Add(-c.ttl).Unix()
	res, err := c.db.Exec(`DELETE FROM statistics_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

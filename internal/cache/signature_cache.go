package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"photocull/internal/metrics"
	"photocull/internal/models"
)

// SchemaVersion tags every stored measurement. Entries written under another
// version are misses.
const SchemaVersion = "1.0.0"

// SignatureCache persists raw measurements keyed by file signature.
// Lookups and writes never fail: faults are logged and read as misses.
type SignatureCache struct {
	db *sql.DB
	options
}

// OpenSignatureCache opens (or creates) the metrics cache at dbPath
func OpenSignatureCache(dbPath string, opts ...Option) (*SignatureCache, error) {
	db, err := openDB(dbPath, `
		CREATE TABLE IF NOT EXISTS metrics_cache (
			signature TEXT PRIMARY KEY,
			schema_version TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, err
	}
	return &SignatureCache{db: db, options: buildOptions("signature-cache", opts)}, nil
}

// Get returns the cached measurements for signature
func (c *SignatureCache) Get(signature string) (models.Measurements, bool) {
	var m models.Measurements
	if signature == "" {
		return m, false
	}

	var data string
	err := c.db.QueryRow(
		`SELECT data FROM metrics_cache WHERE signature = ? AND schema_version = ?`,
		signature, SchemaVersion,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		c.metrics.CacheLookup(metrics.CacheSignature, metrics.ResultMiss)
		return m, false
	}
	if err == nil {
		err = json.Unmarshal([]byte(data), &m)
	}
	if err != nil {
		c.log.WithError(err).Warn("cache read failed")
		c.metrics.CacheLookup(metrics.CacheSignature, metrics.ResultError)
		return models.Measurements{}, false
	}

	c.metrics.CacheLookup(metrics.CacheSignature, metrics.ResultHit)
	return m, true
}

// Put stores measurements under signature, replacing any previous entry
func (c *SignatureCache) Put(signature string, m models.Measurements) {
	if signature == "" {
		return
	}
	if err := c.put(signature, m); err != nil {
		c.log.WithError(err).Warn("cache write failed")
	}
}

func (c *SignatureCache) put(signature string, m models.Measurements) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode measurements: %w", err)
	}
	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO metrics_cache (signature, schema_version, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, signature, SchemaVersion, string(data))
	if err != nil {
		return fmt.Errorf("failed to store measurements: %w", err)
	}
	return nil
}

// Close closes the database connection
func (c *SignatureCache) Close() error {
	return c.db.Close()
}

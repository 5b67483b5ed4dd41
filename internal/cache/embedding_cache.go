package cache

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"photocull/internal/metrics"
)

// EmbeddingCache persists feature vectors as little-endian float32 blobs.
// Like SignatureCache it never fails: faults are logged and read as misses.
type EmbeddingCache struct {
	db *sql.DB
	options
}

// OpenEmbeddingCache opens (or creates) the embedding cache at dbPath
func OpenEmbeddingCache(dbPath string, opts ...Option) (*EmbeddingCache, error) {
	db, err := openDB(dbPath, `
		CREATE TABLE IF NOT EXISTS embeddings (
			key TEXT PRIMARY KEY,
			dim INTEGER NOT NULL,
			vec BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, err
	}
	return &EmbeddingCache{db: db, options: buildOptions("embedding-cache", opts)}, nil
}

// Get returns the cached vector for key. Entries of another dimension are
// treated as misses.
func (c *EmbeddingCache) Get(key string, dim int) ([]float32, bool) {
	if key == "" {
		return nil, false
	}

	var storedDim int
	var blob []byte
	err := c.db.QueryRow(`SELECT dim, vec FROM embeddings WHERE key = ?`, key).Scan(&storedDim, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		c.metrics.CacheLookup(metrics.CacheEmbedding, metrics.ResultMiss)
		return nil, false
	}
	if err != nil {
		c.log.WithError(err).Warn("embedding read failed")
		c.metrics.CacheLookup(metrics.CacheEmbedding, metrics.ResultError)
		return nil, false
	}

	vec, err := decodeVector(blob)
	if err == nil && (storedDim != dim || len(vec) != dim) {
		err = fmt.Errorf("dimension mismatch: stored %d, want %d", storedDim, dim)
	}
	if err != nil {
		c.log.WithError(err).Debug("stale embedding ignored")
		c.metrics.CacheLookup(metrics.CacheEmbedding, metrics.ResultMiss)
		return nil, false
	}

	c.metrics.CacheLookup(metrics.CacheEmbedding, metrics.ResultHit)
	return vec, true
}

// Put stores vec under key
func (c *EmbeddingCache) Put(key string, vec []float32) {
	if key == "" {
		return
	}
	_, err := c.db.Exec(`
		INSERT INTO embeddings (key, dim, vec, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			dim = excluded.dim,
			vec = excluded.vec,
			updated_at = excluded.updated_at
	`, key, len(vec), encodeVector(vec))
	if err != nil {
		c.log.WithError(err).Warn("embedding write failed")
	}
}

// Close closes the database connection
func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector blob of %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}

package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"photocull/internal/logger"
	"photocull/internal/metrics"
)

// DefaultFile is the cache database name created next to the results
const DefaultFile = "cache.db"

// Option configures a cache
type Option func(*options)

type options struct {
	log     *logger.Logger
	metrics *metrics.Metrics
}

// WithLogger sets the logger used for cache faults
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithMetrics records lookups on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(name string, opts []Option) options {
	o := options{log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.Component(name)
	return o
}

// openDB opens an SQLite database, creating its directory, and runs schema
func openDB(dbPath, schema string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Both caches may share one file; wait for locks instead of failing.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

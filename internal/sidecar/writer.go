package sidecar

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"photocull/internal/config"
	"photocull/internal/logger"
	"photocull/internal/metrics"
	"photocull/internal/models"
)

// Write outcomes, also used as metric labels
const (
	ResultUpdated   = "updated"
	ResultUnchanged = "unchanged"
	ResultCorrupt   = "corrupt"
	ResultError     = "error"
)

// Stats summarises a WriteAll run
type Stats struct {
	Updated   int
	Unchanged int
	Corrupt   int
	Failed    int
}

// Writer applies sidecar decisions on an I/O pool sized independently of
// the scoring workers
type Writer struct {
	cfg        config.SidecarConfig
	workers    int
	progressFn func(done, total int)
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// Option configures a Writer
type Option func(*Writer)

// WithWorkers overrides sidecar.workers
func WithWorkers(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithProgress sets a progress callback, invoked from the calling goroutine
func WithProgress(fn func(done, total int)) Option {
	return func(w *Writer) {
		w.progressFn = fn
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(w *Writer) {
		w.log = l
	}
}

// WithMetrics records write outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) {
		w.metrics = m
	}
}

// NewWriter creates a Writer
func NewWriter(cfg config.SidecarConfig, opts ...Option) *Writer {
	w := &Writer{
		cfg:     cfg,
		workers: max(cfg.Workers, 1),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.Component("sidecar")
	return w
}

type outcome struct {
	path   string
	result string
}

// WriteAll derives and applies a decision for every record. Per-file
// failures are logged and counted; they never stop the batch. Cancelling
// ctx stops scheduling new files.
func (w *Writer) WriteAll(ctx context.Context, records []*models.PhotoRecord) Stats {
	groups := GroupContexts(records)
	outcomes := make(chan outcome, len(records))

	go func() {
		defer close(outcomes)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.workers)
		for _, rec := range records {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				outcomes <- outcome{path: rec.Path, result: w.apply(rec, groups[rec.GroupID])}
				return nil
			})
		}
		_ = g.Wait()
	}()

	var stats Stats
	done := 0
	for o := range outcomes {
		switch o.result {
		case ResultUpdated:
			stats.Updated++
		case ResultUnchanged:
			stats.Unchanged++
		case ResultCorrupt:
			stats.Corrupt++
		default:
			stats.Failed++
		}
		w.metrics.SidecarWrite(o.result)
		done++
		if w.progressFn != nil {
			w.progressFn(done, len(records))
		}
	}

	w.log.WithFields(map[string]any{
		"updated":   stats.Updated,
		"unchanged": stats.Unchanged,
		"corrupt":   stats.Corrupt,
		"failed":    stats.Failed,
	}).Info("sidecars written")
	return stats
}

func (w *Writer) apply(rec *models.PhotoRecord, gc GroupContext) string {
	path := SidecarPath(rec.Path)
	changed, err := UpdateXMP(path, Derive(rec, gc, w.cfg))
	switch {
	case errors.Is(err, ErrCorrupt):
		w.log.WithField("path", path).Error("corrupt sidecar skipped")
		return ResultCorrupt
	case err != nil:
		w.log.WithField("path", path).WithError(err).Error("sidecar write failed")
		return ResultError
	case changed:
		return ResultUpdated
	default:
		return ResultUnchanged
	}
}

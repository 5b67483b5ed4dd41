package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"photocull/internal/cache"
	"photocull/internal/config"
	"photocull/internal/imageio"
	"photocull/internal/logger"
	"photocull/internal/metrics"
	"photocull/internal/models"
	"photocull/internal/quality"
)

// Scanner scores every photo of a folder, reusing cached measurements
type Scanner struct {
	cfg        config.Config
	cache      *cache.SignatureCache
	detector   quality.EmotionDetector
	workers    int
	rebuild    bool
	progressFn func(done, total int, current string)
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of parallel workers
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithProgress sets a progress callback. It is only ever invoked from the
// goroutine that called ScanFolder or ScanFiles, with done increasing by one
// per call.
func WithProgress(fn func(done, total int, current string)) Option {
	return func(s *Scanner) {
		s.progressFn = fn
	}
}

// WithCache enables the signature cache
func WithCache(c *cache.SignatureCache) Option {
	return func(s *Scanner) {
		s.cache = c
	}
}

// WithRebuildCache skips cache reads; fresh measurements are still stored
func WithRebuildCache(rebuild bool) Option {
	return func(s *Scanner) {
		s.rebuild = rebuild
	}
}

// WithEmotionDetector enables the optional expression score
func WithEmotionDetector(d quality.EmotionDetector) Option {
	return func(s *Scanner) {
		s.detector = d
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Scanner) {
		s.log = l
	}
}

// WithMetrics records photo outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// NewScanner creates a new Scanner
func NewScanner(cfg config.Config, opts ...Option) *Scanner {
	s := &Scanner{
		cfg:     cfg,
		workers: max(1, cfg.Workers),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Component("scan")
	return s
}

// Discover returns every supported image below folder, sorted by path
func Discover(folder string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == folder {
				return err
			}
			return nil // Skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		if imageio.IsSupportedImage(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ScanFolder discovers and scores all photos in folder
func (s *Scanner) ScanFolder(folder string) ([]*models.PhotoRecord, error) {
	paths, err := Discover(folder)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	return s.ScanFiles(paths), nil
}

// ScanFolders scans multiple folders. Overlapping folders yield each file
// once.
func (s *Scanner) ScanFolders(folders []string) ([]*models.PhotoRecord, error) {
	var all []string
	seen := make(map[string]bool)
	for _, folder := range folders {
		paths, err := Discover(folder)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			p = filepath.Clean(p)
			if !seen[p] {
				seen[p] = true
				all = append(all, p)
			}
		}
	}
	if len(all) == 0 {
		return nil, nil
	}
	return s.ScanFiles(all), nil
}

type task struct {
	path      string
	signature string
}

type result struct {
	task
	m models.Measurements
}

// ScanFiles scores paths and returns exactly one record per path, sorted by
// path. Per-file failures become unusable records; they never abort the
// batch.
func (s *Scanner) ScanFiles(paths []string) []*models.PhotoRecord {
	total := len(paths)
	records := make([]*models.PhotoRecord, 0, total)
	done := 0

	advance := func(rec *models.PhotoRecord) {
		records = append(records, rec)
		s.recordOutcome(rec)
		done++
		if s.progressFn != nil {
			s.progressFn(done, total, rec.Path)
		}
	}

	var tasks []task
	for _, path := range paths {
		sig, err := cache.Signature(path, s.cfg.Decode.LongEdge)
		if err != nil {
			s.log.WithField("path", path).WithError(err).Debug("no signature, measuring uncached")
		}

		if s.cache != nil && !s.rebuild && sig != "" {
			if m, ok := s.cache.Get(sig); ok {
				advance(quality.Rescore(path, m, s.cfg.Scoring))
				continue
			}
		}
		tasks = append(tasks, task{path: path, signature: sig})
	}

	s.log.WithFields(map[string]any{
		"total":  total,
		"hits":   total - len(tasks),
		"misses": len(tasks),
	}).Info("cache lookup complete")

	for r := range s.run(tasks) {
		if r.m.EmotionError != "" {
			s.log.WithField("path", r.path).WithField("error", r.m.EmotionError).Warn("emotion detection failed")
		}
		// Exceptions may be transient, so only clean results and read errors are kept.
		if s.cache != nil && r.signature != "" && r.m.Exception == "" && r.m.EmotionError == "" {
			s.cache.Put(r.signature, r.m)
		}
		advance(quality.Rescore(r.path, r.m, s.cfg.Scoring))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Path < records[j].Path
	})
	return records
}

// run measures tasks on the worker pool. Results arrive in completion order
// and the channel closes once every task has produced one.
func (s *Scanner) run(tasks []task) <-chan result {
	results := make(chan result)
	if len(tasks) == 0 {
		close(results)
		return results
	}

	work := make(chan task, len(tasks))
	for _, t := range tasks {
		work <- t
	}
	close(work)

	var wg sync.WaitGroup
	for i := 0; i < min(s.workers, len(tasks)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range work {
				results <- result{task: t, m: s.measure(t.path)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// measure is the per-file failure boundary
func (s *Scanner) measure(path string) (m models.Measurements) {
	defer func() {
		if r := recover(); r != nil {
			m = models.Measurements{Exception: fmt.Sprint(r)}
		}
	}()
	return quality.MeasureFile(path, s.cfg, s.detector)
}

func (s *Scanner) recordOutcome(rec *models.PhotoRecord) {
	outcome := "usable"
	switch {
	case rec.Sharpness == nil:
		outcome = "failed"
		s.log.WithField("path", rec.Path).WithField("reasons", rec.Reasons).Warn("photo could not be measured")
	case rec.IsUnusable:
		outcome = "unusable"
	}
	s.metrics.PhotoScored(outcome)
}

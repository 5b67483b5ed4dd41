package embed

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"

	"photocull/internal/cache"
	"photocull/internal/imageio"
	"photocull/internal/logger"
	"photocull/internal/metrics"
)

// Orchestrator computes one embedding per photo, batching extractor calls and
// reusing cached vectors.
type Orchestrator struct {
	extractor     Extractor
	cache         *cache.EmbeddingCache
	thumbLongEdge int
	batchSize     int
	decodeWorkers int
	progressFn    func(done, total, cacheHits int)
	log           *logger.Logger
	metrics       *metrics.Metrics
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithThumbLongEdge sets the thumbnail size fed to the extractor
func WithThumbLongEdge(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.thumbLongEdge = n
		}
	}
}

// WithBatchSize sets how many thumbnails go to the extractor at once
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithDecodeWorkers bounds concurrent thumbnail decoding within a batch
func WithDecodeWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.decodeWorkers = n
		}
	}
}

// WithProgress sets a progress callback, invoked from the calling goroutine
func WithProgress(fn func(done, total, cacheHits int)) Option {
	return func(o *Orchestrator) {
		o.progressFn = fn
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithMetrics records extraction failures on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an Orchestrator. A nil cache disables caching.
func NewOrchestrator(ex Extractor, c *cache.EmbeddingCache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:     ex,
		cache:         c,
		thumbLongEdge: 256,
		batchSize:     32,
		decodeWorkers: 4,
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.Component("embed").WithField("model", ex.Model())
	return o
}

// Result holds one vector per input path, in input order
type Result struct {
	Vectors   [][]float32
	CacheHits int
	Failed    int // Photos that received a zero vector
}

type pending struct {
	index int
	path  string
	key   string
}

// Compute returns a unit-length vector for every path. Photos that cannot be
// decoded or embedded get a zero vector; Compute itself never fails. Once ctx
// is cancelled no further batches are sent and the remaining photos keep zero
// vectors without counting as failures; callers check ctx.Err().
func (o *Orchestrator) Compute(ctx context.Context, paths []string) Result {
	total := len(paths)
	res := Result{Vectors: make([][]float32, total)}
	done := 0

	advance := func() {
		done++
		if o.progressFn != nil {
			o.progressFn(done, total, res.CacheHits)
		}
	}

	var batch []pending
	for i, path := range paths {
		key, err := cache.EmbeddingKey(path, o.thumbLongEdge, o.extractor.Model())
		if err != nil {
			o.log.WithField("path", path).WithError(err).Debug("no embedding key")
		}

		if o.cache != nil {
			if vec, ok := o.cache.Get(key, o.extractor.Dim()); ok {
				res.Vectors[i] = vec
				res.CacheHits++
				advance()
				continue
			}
		}

		batch = append(batch, pending{index: i, path: path, key: key})
		if len(batch) >= o.batchSize {
			if ctx.Err() != nil {
				break
			}
			res.Failed += o.flush(ctx, batch, res.Vectors)
			for range batch {
				advance()
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 && ctx.Err() == nil {
		res.Failed += o.flush(ctx, batch, res.Vectors)
		for range batch {
			advance()
		}
	}

	for i, v := range res.Vectors {
		if v == nil {
			res.Vectors[i] = make([]float32, o.extractor.Dim())
		}
	}

	o.metrics.ExtractionFailed(res.Failed)
	o.log.WithFields(map[string]any{
		"total":  total,
		"hits":   res.CacheHits,
		"failed": res.Failed,
	}).Info("embeddings computed")
	return res
}

// flush embeds one batch into out and returns how many items failed
func (o *Orchestrator) flush(ctx context.Context, batch []pending, out [][]float32) int {
	thumbs := o.decode(ctx, batch)

	var imgs []image.Image
	var items []pending
	for j, img := range thumbs {
		if img != nil {
			imgs = append(imgs, img)
			items = append(items, batch[j])
		}
	}
	failed := len(batch) - len(items)
	if len(imgs) == 0 {
		return failed
	}

	vecs, err := o.extractor.Extract(ctx, imgs)
	if len(vecs) != len(imgs) {
		if err == nil {
			err = fmt.Errorf("extractor returned %d vectors for %d images", len(vecs), len(imgs))
		}
		o.log.WithError(err).WithField("batch", len(imgs)).Error("feature extraction failed")
		return len(batch)
	}
	if err != nil {
		o.log.WithError(err).WithField("batch", len(imgs)).Warn("feature extraction failed for part of a batch")
	}

	for k, it := range items {
		vec := vecs[k]
		if vec == nil {
			failed++
			continue
		}
		if len(vec) != o.extractor.Dim() {
			o.log.WithField("path", it.path).Warnf("extractor returned %d dimensions, want %d", len(vec), o.extractor.Dim())
			failed++
			continue
		}
		vec = Normalize(vec)
		out[it.index] = vec
		if o.cache != nil {
			o.cache.Put(it.key, vec)
		}
	}
	return failed
}

// decode loads thumbnails concurrently; failed slots stay nil
func (o *Orchestrator) decode(ctx context.Context, batch []pending) []image.Image {
	thumbs := make([]image.Image, len(batch))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(o.decodeWorkers)
	for j, it := range batch {
		g.Go(func() error {
			img, err := imageio.Decode(it.path, o.thumbLongEdge)
			if err != nil {
				o.log.WithField("path", it.path).WithError(err).Warn("thumbnail decode failed")
				return nil
			}
			thumbs[j] = img
			return nil
		})
	}
	_ = g.Wait()
	return thumbs
}

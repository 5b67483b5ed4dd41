package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"photocull/internal/cache"
	"photocull/internal/cluster"
	"photocull/internal/embed"
	"photocull/internal/group"
	"photocull/internal/imageio"
	"photocull/internal/models"
	"photocull/internal/scan"
	"photocull/internal/sidecar"
	"photocull/internal/storage"
)

// Run kinds stored in history
const (
	kindCompute  = "compute"
	kindGroup    = "group"
	kindWriteXMP = "write-xmp"
)

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	if noProgress || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func setProgress(bar *progressbar.ProgressBar, done int) {
	if bar != nil {
		_ = bar.Set(done)
	}
}

func finishProgress(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}

func absFolder(folder string) (string, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", folder, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to access %s: %w", folder, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", folder)
	}
	return abs, nil
}

// computeStage scores every photo under folder and replaces the stored
// records for that folder. Photos that disappeared since the last run are
// dropped from the store.
func computeStage(ctx context.Context, store *storage.Storage, folder string, rebuild bool) ([]*models.PhotoRecord, error) {
	start := time.Now()
	defer mtr.ObserveStage(kindCompute, start)

	paths, err := scan.Discover(folder)
	if err != nil {
		return nil, err
	}

	sigCache, err := cache.OpenSignatureCache(cacheDBPath, cache.WithLogger(log), cache.WithMetrics(mtr))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	defer sigCache.Close()

	bar := newProgressBar(len(paths), "Scoring photos")
	scanner := scan.NewScanner(cfg,
		scan.WithCache(sigCache),
		scan.WithRebuildCache(rebuild),
		scan.WithLogger(log),
		scan.WithMetrics(mtr),
		scan.WithProgress(func(done, total int, current string) {
			setProgress(bar, done)
		}),
	)
	records := scanner.ScanFiles(paths)
	finishProgress(bar)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored, err := store.LoadRecords(folder)
	if err != nil {
		return nil, err
	}
	current := make(map[string]bool, len(paths))
	for _, p := range paths {
		current[p] = true
	}
	for _, rec := range stored {
		if !current[rec.Path] {
			if err := store.DeleteRecord(rec.Path); err != nil {
				return nil, fmt.Errorf("failed to drop %s: %w", rec.Path, err)
			}
		}
	}

	if err := store.SaveRecords(records); err != nil {
		return nil, fmt.Errorf("failed to save records: %w", err)
	}

	unusable := 0
	for _, rec := range records {
		if rec.IsUnusable {
			unusable++
		}
	}
	recordRun(store, storage.Run{
		Kind:        kindCompute,
		Folder:      folder,
		StartedAt:   start,
		TotalPhotos: len(records),
		Unusable:    unusable,
	})
	return records, nil
}

// groupStage clusters the stored records under folder and persists group
// membership. A non-empty reportPath also writes the JSON group report.
func groupStage(ctx context.Context, store *storage.Storage, folder, reportPath string) ([]*models.PhotoRecord, group.Result, error) {
	start := time.Now()
	defer mtr.ObserveStage(kindGroup, start)

	records, err := store.LoadRecords(folder)
	if err != nil {
		return nil, group.Result{}, err
	}

	gcfg := cfg.Grouping
	extractor, err := embed.NewExtractor(gcfg)
	if err != nil {
		return nil, group.Result{}, err
	}

	embCache, err := cache.OpenEmbeddingCache(cacheDBPath, cache.WithLogger(log), cache.WithMetrics(mtr))
	if err != nil {
		return nil, group.Result{}, fmt.Errorf("failed to open cache: %w", err)
	}
	defer embCache.Close()

	paths := make([]string, len(records))
	timestamps := make([]float64, len(records))
	for i, rec := range records {
		paths[i] = rec.Path
		rec.CaptureTS = imageio.CaptureTime(rec.Path, gcfg.TimeSource)
		timestamps[i] = rec.CaptureTS
	}

	bar := newProgressBar(len(paths), "Embedding photos")
	orch := embed.NewOrchestrator(extractor, embCache,
		embed.WithThumbLongEdge(gcfg.ThumbLongEdge),
		embed.WithBatchSize(gcfg.BatchSize),
		embed.WithDecodeWorkers(cfg.Workers),
		embed.WithLogger(log),
		embed.WithMetrics(mtr),
		embed.WithProgress(func(done, total, cacheHits int) {
			setProgress(bar, done)
		}),
	)
	emb := orch.Compute(ctx, paths)
	finishProgress(bar)

	if err := ctx.Err(); err != nil {
		return nil, group.Result{}, err
	}

	params := cluster.ParamsFrom(gcfg)
	if gcfg.TimeWindowSecs <= 0 {
		timestamps = nil
	}
	labels, err := cluster.Windowed(emb.Vectors, timestamps, params)
	if err != nil {
		return nil, group.Result{}, err
	}
	byPath, err := group.LabelsByPath(paths, labels)
	if err != nil {
		return nil, group.Result{}, err
	}

	result := group.Assemble(records, byPath, gcfg.TopK)
	if err := store.UpdateGroups(records); err != nil {
		return nil, group.Result{}, fmt.Errorf("failed to save groups: %w", err)
	}

	if reportPath != "" {
		err := group.WriteReport(reportPath, group.Report{
			InputDir:       folder,
			Model:          extractor.Model(),
			ThumbLongEdge:  gcfg.ThumbLongEdge,
			Eps:            gcfg.Eps,
			MinSamples:     gcfg.MinSamples,
			NeighborWindow: gcfg.NeighborWindow,
			TimeWindowSecs: gcfg.TimeWindowSecs,
			TopK:           gcfg.TopK,
			Groups:         result.Groups,
			Noise:          result.Noise,
		})
		if err != nil {
			return nil, group.Result{}, err
		}
	}

	log.WithFields(map[string]any{
		"photos":     len(records),
		"groups":     len(result.Groups),
		"noise":      len(result.Noise),
		"cache_hits": emb.CacheHits,
		"failed":     emb.Failed,
	}).Info("grouping complete")

	recordRun(store, storage.Run{
		Kind:        kindGroup,
		Folder:      folder,
		StartedAt:   start,
		TotalPhotos: len(records),
		TotalGroups: len(result.Groups),
	})
	return records, result, nil
}

// writeXMPStage writes sidecars for the stored records under folder
func writeXMPStage(ctx context.Context, store *storage.Storage, folder string) (sidecar.Stats, error) {
	start := time.Now()
	defer mtr.ObserveStage(kindWriteXMP, start)

	records, err := store.LoadRecords(folder)
	if err != nil {
		return sidecar.Stats{}, err
	}

	bar := newProgressBar(len(records), "Writing sidecars")
	writer := sidecar.NewWriter(cfg.Sidecar,
		sidecar.WithLogger(log),
		sidecar.WithMetrics(mtr),
		sidecar.WithProgress(func(done, total int) {
			setProgress(bar, done)
		}),
	)
	stats := writer.WriteAll(ctx, records)
	finishProgress(bar)

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	recordRun(store, storage.Run{
		Kind:        kindWriteXMP,
		Folder:      folder,
		StartedAt:   start,
		TotalPhotos: len(records),
		Changed:     stats.Updated,
	})
	return stats, nil
}

// recordRun logs instead of failing: history is informational
func recordRun(store *storage.Storage, run storage.Run) {
	if _, err := store.RecordRun(run); err != nil {
		log.WithError(err).Warn("failed to record run")
	}
}

package scan

import (
	"errors"
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"photocull/internal/cache"
	"photocull/internal/config"
	"photocull/internal/metrics"
	"photocull/internal/models"
	"photocull/internal/quality"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeNoisePNG(t *testing.T, path string, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 48, 32))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
}

func setupFolder(t *testing.T, good int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < good; i++ {
		writeNoisePNG(t, filepath.Join(dir, string(rune('a'+i))+".png"), int64(i))
	}
	return dir
}

func openCache(t *testing.T, m *metrics.Metrics) *cache.SignatureCache {
	t.Helper()
	c, err := cache.OpenSignatureCache(filepath.Join(t.TempDir(), cache.DefaultFile), cache.WithMetrics(m))
	if err != nil {
		t.Fatalf("OpenSignatureCache failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewScanner_Defaults(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 3
	s := NewScanner(cfg)

	if s.workers != 3 {
		t.Errorf("default workers = %d, want 3", s.workers)
	}
	if s.progressFn != nil {
		t.Error("default progressFn should be nil")
	}
	if s.cache != nil {
		t.Error("default cache should be nil")
	}
}

func TestNewScanner_WithWorkers(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 2

	if s := NewScanner(cfg, WithWorkers(5)); s.workers != 5 {
		t.Errorf("workers = %d, want 5", s.workers)
	}
	if s := NewScanner(cfg, WithWorkers(0)); s.workers != 2 {
		t.Errorf("workers with 0 = %d, want 2", s.workers)
	}
	if s := NewScanner(cfg, WithWorkers(-1)); s.workers != 2 {
		t.Errorf("workers with -1 = %d, want 2", s.workers)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"b.jpg", "a.png", "notes.txt", "a.xmp", filepath.Join("sub", "c.JPG")} {
		if err := os.WriteFile(filepath.Join(dir, p), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.jpg"),
		filepath.Join(dir, "sub", "c.JPG"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Discover = %v, want %v", got, want)
	}
}

func TestDiscover_MissingFolder(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing folder")
	}
}

func TestScanFolder_EmptyDirectory(t *testing.T) {
	s := NewScanner(config.Default())
	records, err := s.ScanFolder(t.TempDir())
	if err != nil {
		t.Fatalf("ScanFolder failed: %v", err)
	}
	if records != nil {
		t.Errorf("expected nil for empty directory, got %d records", len(records))
	}
}

func TestScanFolder_OneRecordPerFile(t *testing.T) {
	dir := setupFolder(t, 4)
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not a jpeg"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewScanner(config.Default(), WithWorkers(3))
	records, err := s.ScanFolder(dir)
	if err != nil {
		t.Fatalf("ScanFolder failed: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}

	for i := 1; i < len(records); i++ {
		if records[i-1].Path >= records[i].Path {
			t.Errorf("records not sorted: %q before %q", records[i-1].Path, records[i].Path)
		}
	}

	var broken *models.PhotoRecord
	for _, r := range records {
		if filepath.Base(r.Path) == "broken.jpg" {
			broken = r
		}
	}
	if broken == nil {
		t.Fatal("broken.jpg missing from results")
	}
	if !broken.IsUnusable || broken.TechnicalScore != 0 || !broken.HasReason(quality.ReasonReadError) {
		t.Errorf("broken record = %+v, want unusable read error", broken)
	}
}

func TestScanFiles_Progress(t *testing.T) {
	dir := setupFolder(t, 5)
	paths, _ := Discover(dir)

	var seen []int
	s := NewScanner(config.Default(),
		WithWorkers(4),
		WithProgress(func(done, total int, current string) {
			if total != 5 {
				t.Errorf("total = %d, want 5", total)
			}
			seen = append(seen, done)
		}),
	)
	s.ScanFiles(paths)

	if !reflect.DeepEqual(seen, []int{1, 2, 3, 4, 5}) {
		t.Errorf("progress sequence = %v, want 1..5", seen)
	}
}

func TestScanFiles_CacheIdempotent(t *testing.T) {
	dir := setupFolder(t, 4)
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}
	paths, _ := Discover(dir)

	m, _ := metrics.New()
	c := openCache(t, m)
	cfg := config.Default()

	first := NewScanner(cfg, WithCache(c)).ScanFiles(paths)
	second := NewScanner(cfg, WithCache(c)).ScanFiles(paths)

	if !reflect.DeepEqual(first, second) {
		t.Error("cached run differs from fresh run")
	}
	if hits := testutil.ToFloat64(m.CacheLookups.WithLabelValues(metrics.CacheSignature, metrics.ResultHit)); hits != 5 {
		t.Errorf("cache hits = %v, want 5", hits)
	}
}

func TestScanFiles_RebuildSkipsReads(t *testing.T) {
	dir := setupFolder(t, 2)
	paths, _ := Discover(dir)

	m, _ := metrics.New()
	c := openCache(t, m)

	NewScanner(config.Default(), WithCache(c)).ScanFiles(paths)
	NewScanner(config.Default(), WithCache(c), WithRebuildCache(true)).ScanFiles(paths)

	if hits := testutil.ToFloat64(m.CacheLookups.WithLabelValues(metrics.CacheSignature, metrics.ResultHit)); hits != 0 {
		t.Errorf("cache hits = %v, want 0", hits)
	}
}

func TestScanFiles_RescoresCachedUnderNewThresholds(t *testing.T) {
	dir := setupFolder(t, 1)
	paths, _ := Discover(dir)
	c := openCache(t, nil)

	loose := config.Default()
	loose.Scoring.SharpnessThreshold = 1
	first := NewScanner(loose, WithCache(c)).ScanFiles(paths)
	if first[0].Sharpness.IsBlurry {
		t.Fatal("noise image should pass a threshold of 1")
	}

	strict := config.Default()
	strict.Scoring.SharpnessThreshold = 1e9
	second := NewScanner(strict, WithCache(c)).ScanFiles(paths)
	if !second[0].Sharpness.IsBlurry {
		t.Error("cached measurement was not rescored under the strict threshold")
	}
	if second[0].Sharpness.Score != first[0].Sharpness.Score {
		t.Errorf("raw sharpness changed: %v vs %v", second[0].Sharpness.Score, first[0].Sharpness.Score)
	}
}

type panickingDetector struct{}

func (panickingDetector) Detect(image.Image) (string, float64, bool, error) {
	panic("model crashed")
}

func TestScanFiles_ExceptionsAreIsolatedAndNotCached(t *testing.T) {
	dir := setupFolder(t, 3)
	paths, _ := Discover(dir)

	m, _ := metrics.New()
	c := openCache(t, m)

	records := NewScanner(config.Default(),
		WithCache(c),
		WithMetrics(m),
		WithEmotionDetector(panickingDetector{}),
	).ScanFiles(paths)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for _, r := range records {
		if !r.IsUnusable || len(r.Reasons) != 1 || r.Reasons[0] != "Exception: model crashed" {
			t.Errorf("record = %+v, want exception failure", r)
		}
	}

	NewScanner(config.Default(), WithCache(c)).ScanFiles(paths)
	if hits := testutil.ToFloat64(m.CacheLookups.WithLabelValues(metrics.CacheSignature, metrics.ResultHit)); hits != 0 {
		t.Errorf("exception results were cached: %v hits", hits)
	}
	if got := testutil.ToFloat64(m.Photos.WithLabelValues("failed")); got != 3 {
		t.Errorf("failed photos = %v, want 3", got)
	}
}

type failingDetector struct{}

func (failingDetector) Detect(image.Image) (string, float64, bool, error) {
	return "", 0, false, errors.New("model not loaded")
}

func TestScanFiles_DetectorErrorKeepsScores(t *testing.T) {
	dir := setupFolder(t, 2)
	paths, _ := Discover(dir)

	m, _ := metrics.New()
	c := openCache(t, m)

	loose := config.Default()
	loose.Scoring.SharpnessThreshold = 1
	records := NewScanner(loose,
		WithCache(c),
		WithMetrics(m),
		WithEmotionDetector(failingDetector{}),
	).ScanFiles(paths)
	for _, r := range records {
		if r.Sharpness == nil {
			t.Fatalf("record %s lost its measurements", r.Path)
		}
		if r.Emotion != "" {
			t.Errorf("record %s has emotion %q, want none", r.Path, r.Emotion)
		}
		for _, reason := range r.Reasons {
			if reason == "Exception: model not loaded" {
				t.Errorf("detector error reported as exception for %s", r.Path)
			}
		}
	}
	if got := testutil.ToFloat64(m.Photos.WithLabelValues("failed")); got != 0 {
		t.Errorf("failed photos = %v, want 0", got)
	}

	NewScanner(loose, WithCache(c)).ScanFiles(paths)
	if hits := testutil.ToFloat64(m.CacheLookups.WithLabelValues(metrics.CacheSignature, metrics.ResultHit)); hits != 0 {
		t.Errorf("results without emotion were cached: %v hits", hits)
	}
}

func TestScanFolders_Overlapping(t *testing.T) {
	dir := setupFolder(t, 2)
	sub := filepath.Join(dir, "burst")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	writeNoisePNG(t, filepath.Join(sub, "z.png"), 9)

	s := NewScanner(config.Default())
	records, err := s.ScanFolders([]string{dir, sub, dir + string(filepath.Separator)})
	if err != nil {
		t.Fatalf("ScanFolders failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	seen := make(map[string]bool)
	for _, r := range records {
		if seen[r.Path] {
			t.Errorf("duplicate record for %s", r.Path)
		}
		seen[r.Path] = true
	}
}

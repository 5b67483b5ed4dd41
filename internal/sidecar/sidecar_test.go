package sidecar

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"photocull/internal/config"
	"photocull/internal/metrics"
	"photocull/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sidecarCfg() config.SidecarConfig {
	return config.Default().Sidecar
}

func record(path string, score float64) *models.PhotoRecord {
	r := models.NewPhotoRecord(path)
	r.TechnicalScore = score
	return r
}

func grouped(path string, score float64, gid, size, rank int, best bool) *models.PhotoRecord {
	r := record(path, score)
	r.GroupID, r.GroupSize, r.RankInGroup, r.IsGroupBest = gid, size, rank, best
	return r
}

type sidecarState struct {
	rating, label string
	hasRating     bool
	keywords      []string
}

func readSidecar(t *testing.T, path string) sidecarState {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(path))
	desc := description(doc.Root())

	var s sidecarState
	if el := child(desc, nsXMP, "Rating"); el != nil {
		s.rating, s.hasRating = el.Text(), true
	}
	if a := desc.SelectAttr("xmp:Rating"); a != nil {
		s.rating, s.hasRating = a.Value, true
	}
	if el := child(desc, nsXMP, "Label"); el != nil {
		s.label = el.Text()
	}
	if subject := child(desc, nsDC, "subject"); subject != nil {
		if bag := child(subject, nsRDF, "Bag"); bag != nil {
			for _, li := range children(bag, nsRDF, "li") {
				s.keywords = append(s.keywords, li.Text())
			}
		}
	}
	return s
}

func TestSidecarPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/photos/IMG_0001.JPG", "/photos/IMG_0001.xmp"},
		{"/photos/a.b.png", "/photos/a.b.xmp"},
		{"noext", "noext.xmp"},
	}
	for _, tt := range tests {
		if got := SidecarPath(tt.in); got != tt.want {
			t.Errorf("SidecarPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDerive_Bands(t *testing.T) {
	cfg := sidecarCfg()
	tests := []struct {
		score      float64
		wantRating int
		wantLabel  string
	}{
		{95, 5, LabelGreen},
		{80, 5, LabelGreen},
		{79.9, 4, ""},
		{60, 4, ""},
		{45, 3, ""},
		{39, 2, ""},
	}
	for _, tt := range tests {
		d := Derive(record("a.jpg", tt.score), GroupContext{}, cfg)
		assert.Equal(t, tt.wantRating, d.Rating, "score %v", tt.score)
		assert.Equal(t, tt.wantLabel, d.Label, "score %v", tt.score)
	}
}

func TestDerive_Unusable(t *testing.T) {
	r := record("a.jpg", 12)
	r.IsUnusable = true
	r.Reasons = []string{"Blurry", "Low Score"}

	d := Derive(r, GroupContext{}, sidecarCfg())
	assert.Equal(t, 1, d.Rating)
	assert.Equal(t, LabelRejected, d.Label)
	assert.Equal(t, []string{"AI/Blurry", "AI/Low Score"}, d.Keywords)
}

func TestDerive_GroupBest(t *testing.T) {
	cfg := sidecarCfg()

	// Unique best at band 3 is lifted to top1_rating
	best := grouped("a.jpg", 45, 2, 3, 1, true)
	gc := GroupContext{BestScore: 45, RunnerUp: 44, Size: 3, Initialized: true}
	d := Derive(best, gc, cfg)
	assert.Equal(t, cfg.Top1Rating, d.Rating)
	assert.Equal(t, []string{"AI/Group/2", "AI/GroupRank/1", "AI/BestInGroup"}, d.Keywords)

	// A tie at the top only earns best_min_rating
	gc.RunnerUp = 45
	d = Derive(best, gc, cfg)
	assert.Equal(t, cfg.BestMinRating, d.Rating)

	// Second best keeps its band and is not marked similar
	second := grouped("b.jpg", 45, 2, 3, 2, true)
	d = Derive(second, gc, cfg)
	assert.Equal(t, 3, d.Rating)
	assert.NotContains(t, d.Keywords, "AI/Similar")
}

func TestDerive_NonBestModes(t *testing.T) {
	gc := GroupContext{BestScore: 90, RunnerUp: 85, Size: 3, Initialized: true}
	worse := grouped("c.jpg", 70, 0, 3, 3, false)

	tests := []struct {
		mode string
		want int
	}{
		{config.NonBestKeep, 4},
		{config.NonBestCap, 2},
		{config.NonBestClear, 0},
	}
	for _, tt := range tests {
		cfg := sidecarCfg()
		cfg.NonBestMode = tt.mode
		d := Derive(worse, gc, cfg)
		assert.Equal(t, tt.want, d.Rating, "mode %s", tt.mode)
		assert.Contains(t, d.Keywords, "AI/Similar", "score 20 below best")
	}

	near := grouped("d.jpg", 85, 0, 3, 3, false)
	d := Derive(near, gc, sidecarCfg())
	assert.NotContains(t, d.Keywords, "AI/Similar")
}

func TestDerive_NoGroupKeywords(t *testing.T) {
	cfg := sidecarCfg()
	cfg.AddKeywords = false
	d := Derive(grouped("a.jpg", 90, 1, 2, 1, true), GroupContext{Size: 2, Initialized: true}, cfg)
	assert.Empty(t, d.Keywords)
}

func TestGroupContexts(t *testing.T) {
	ctxs := GroupContexts([]*models.PhotoRecord{
		grouped("a", 90, 0, 2, 1, true),
		grouped("b", 80, 0, 2, 2, true),
		record("n", 50),
	})
	require.Len(t, ctxs, 1)
	assert.Equal(t, GroupContext{BestScore: 90, RunnerUp: 80, Size: 2, Initialized: true}, ctxs[0])
	assert.True(t, ctxs[0].UniqueBest())
}

func TestUpdateXMP_CreatesSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.xmp")

	changed, err := UpdateXMP(path, Decision{Rating: 5, Label: LabelGreen, Keywords: []string{"AI/b", "AI/a", "user"}})
	require.NoError(t, err)
	assert.True(t, changed)

	s := readSidecar(t, path)
	assert.Equal(t, "5", s.rating)
	assert.Equal(t, LabelGreen, s.label)
	assert.Equal(t, []string{"AI/a", "AI/b"}, s.keywords, "only AI/ keywords, sorted")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<?xml"))
}

func TestUpdateXMP_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.xmp")
	d := Decision{Rating: 3, Keywords: []string{"AI/Group/1"}}

	changed, err := UpdateXMP(path, d)
	require.NoError(t, err)
	assert.True(t, changed)

	info, err := os.Stat(path)
	require.NoError(t, err)

	changed, err = UpdateXMP(path, d)
	require.NoError(t, err)
	assert.False(t, changed)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())
}

func TestUpdateXMP_ZeroRatingNotCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.xmp")

	changed, err := UpdateXMP(path, Decision{Rating: 0})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoFileExists(t, path)

	changed, err = UpdateXMP(path, Decision{Rating: 0, Label: "Blue"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, readSidecar(t, path).hasRating)

	// An existing rating is cleared to 0, and out-of-range ratings clamp
	_, err = UpdateXMP(path, Decision{Rating: 9})
	require.NoError(t, err)
	assert.Equal(t, "5", readSidecar(t, path).rating)
	_, err = UpdateXMP(path, Decision{Rating: 0})
	require.NoError(t, err)
	assert.Equal(t, "0", readSidecar(t, path).rating)
}

func TestUpdateXMP_SyncsKeywords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.xmp")

	_, err := UpdateXMP(path, Decision{Rating: 5, Label: LabelGreen, Keywords: []string{
		"AI/Group/1", "AI/Group/1", "AI/GroupRank/1", "AI/GroupRank/1", "AI/BestInGroup", "AI/BestInGroup",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"AI/BestInGroup", "AI/Group/1", "AI/GroupRank/1"}, readSidecar(t, path).keywords)

	_, err = UpdateXMP(path, Decision{Rating: 4, Label: LabelGreen, Keywords: []string{"AI/Group/2", "AI/GroupRank/3", "AI/Similar"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"AI/Group/2", "AI/GroupRank/3", "AI/Similar"}, readSidecar(t, path).keywords)
}

const lightroomXMP = `<?xml version="1.0" encoding="UTF-8"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about="" xmlns:xap="http://ns.adobe.com/xap/1.0/" xmlns:dc="http://purl.org/dc/elements/1.1/"
    xap:Rating="2">
   <dc:subject>
    <rdf:Bag>
     <rdf:li>family</rdf:li>
     <rdf:li>AI/Blurry</rdf:li>
     <rdf:li>AI/Old</rdf:li>
     <rdf:li>AI/Old</rdf:li>
    </rdf:Bag>
   </dc:subject>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>`

func TestUpdateXMP_PreservesUserData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.xmp")
	require.NoError(t, os.WriteFile(path, []byte(lightroomXMP), 0644))

	changed, err := UpdateXMP(path, Decision{Rating: 4, Keywords: []string{"AI/Blurry", "AI/New"}})
	require.NoError(t, err)
	assert.True(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `xap:Rating="4"`, "attribute form updated in place")

	s := readSidecar(t, path)
	assert.Equal(t, []string{"family", "AI/Blurry", "AI/New"}, s.keywords)
}

func TestUpdateXMP_CorruptSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.xmp")
	garbage := []byte("<x:xmpmeta><<</x:xmpmeta>")
	require.NoError(t, os.WriteFile(path, garbage, 0644))

	changed, err := UpdateXMP(path, Decision{Rating: 5})
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.False(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, garbage, data)
}

func TestWriter_WriteAll(t *testing.T) {
	dir := t.TempDir()
	records := []*models.PhotoRecord{
		grouped(filepath.Join(dir, "a.jpg"), 90, 0, 2, 1, true),
		grouped(filepath.Join(dir, "b.jpg"), 60, 0, 2, 2, true),
		record(filepath.Join(dir, "c.jpg"), 20),
		record(filepath.Join(dir, "d.jpg"), 50),
	}
	records[2].IsUnusable = true
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.xmp"), []byte("<x:xmpmeta><<"), 0644))

	m, err := metrics.New()
	require.NoError(t, err)

	var progress []int
	w := NewWriter(sidecarCfg(), WithWorkers(3), WithMetrics(m), WithProgress(func(done, total int) {
		assert.Equal(t, 4, total)
		progress = append(progress, done)
	}))

	stats := w.WriteAll(context.Background(), records)
	assert.Equal(t, Stats{Updated: 3, Corrupt: 1}, stats)
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SidecarWrites.WithLabelValues(ResultUpdated)))

	assert.Equal(t, "5", readSidecar(t, filepath.Join(dir, "a.xmp")).rating)
	assert.Equal(t, LabelRejected, readSidecar(t, filepath.Join(dir, "c.xmp")).label)

	again := w.WriteAll(context.Background(), records)
	assert.Equal(t, Stats{Unchanged: 3, Corrupt: 1}, again)
}

func TestWriter_Cancelled(t *testing.T) {
	dir := t.TempDir()
	records := []*models.PhotoRecord{record(filepath.Join(dir, "a.jpg"), 90)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats := NewWriter(sidecarCfg()).WriteAll(ctx, records)
	assert.Equal(t, Stats{}, stats)
	assert.NoFileExists(t, filepath.Join(dir, "a.xmp"))
}

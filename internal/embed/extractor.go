package embed

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	"photocull/internal/config"
)

// Extractor turns a batch of thumbnails into fixed-length feature vectors,
// one per input and in input order. Vectors need not be normalised. An
// extractor that fails on single images returns a full-length result with
// nil entries for them alongside a non-nil error.
type Extractor interface {
	Model() string
	Dim() int
	Extract(ctx context.Context, batch []image.Image) ([][]float32, error)
}

type factory func(cfg config.GroupingConfig) (Extractor, error)

var registry = map[string]factory{
	ModelHSVHist: func(config.GroupingConfig) (Extractor, error) { return NewHSVHistogram(), nil },
	ModelPHash:   func(config.GroupingConfig) (Extractor, error) { return NewPerceptualHash(), nil },
	ModelCLIP: func(cfg config.GroupingConfig) (Extractor, error) {
		return NewRemote(cfg.EmbeddingURL, cfg.EmbeddingDim)
	},
}

// Models lists the known model identifiers
func Models() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewExtractor builds the extractor named by cfg.Model. An unknown model is
// a configuration error.
func NewExtractor(cfg config.GroupingConfig) (Extractor, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Model))
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown embedding model %q (known: %v)", config.ErrConfiguration, cfg.Model, Models())
	}
	return f(cfg)
}

// Normalize scales v to unit length in place. Zero vectors stay zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Max(math.Sqrt(sum), 1e-12)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

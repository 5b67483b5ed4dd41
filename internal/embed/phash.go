package embed

import (
	"context"
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// ModelPHash is a 256-bit DCT perceptual hash expanded to a ±1 vector
const ModelPHash = "phash"

const phashSide = 16

// PerceptualHash embeds a photo as its extended perceptual hash. The cosine
// similarity of two such vectors is 1 - 2·hamming/256.
type PerceptualHash struct{}

func NewPerceptualHash() *PerceptualHash {
	return &PerceptualHash{}
}

func (p *PerceptualHash) Model() string { return ModelPHash }

func (p *PerceptualHash) Dim() int { return phashSide * phashSide }

func (p *PerceptualHash) Extract(_ context.Context, batch []image.Image) ([][]float32, error) {
	out := make([][]float32, len(batch))
	for i, img := range batch {
		hash, err := goimagehash.ExtPerceptionHash(img, phashSide, phashSide)
		if err != nil {
			return nil, fmt.Errorf("failed to compute hash: %w", err)
		}
		vec := make([]float32, 0, p.Dim())
		for _, word := range hash.GetHash() {
			for bit := 63; bit >= 0; bit-- {
				if word&(1<<uint(bit)) != 0 {
					vec = append(vec, 1)
				} else {
					vec = append(vec, -1)
				}
			}
		}
		out[i] = vec
	}
	return out, nil
}

package quality

import (
	"image"
	"sort"

	"photocull/internal/config"
	"photocull/internal/imageio"
	"photocull/internal/models"
)

// Sharpness measures focus as the mean Laplacian variance of the sharpest
// grid cells. Averaging only the top cells keeps shallow depth-of-field
// shots from being penalised for their blurred backgrounds.
func Sharpness(img image.Image, cfg config.ScoringConfig) models.SharpnessResult {
	gray := imageio.ToGray(img)

	// Normalise width so variances are comparable across source resolutions.
	if w := gray.Bounds().Dx(); cfg.ReferenceWidth > 0 && w > cfg.ReferenceWidth {
		scale := float64(cfg.ReferenceWidth) / float64(w)
		h := int(float64(gray.Bounds().Dy()) * scale)
		gray = imageio.ToGray(imageio.Resize(gray, cfg.ReferenceWidth, max(1, h)))
	}

	score := gridScore(gray, cfg.SharpnessGrid, cfg.SharpnessTopK)
	return models.SharpnessResult{
		Score:    score,
		IsBlurry: score < cfg.SharpnessThreshold,
	}
}

func gridScore(gray *image.Gray, grid, topK int) float64 {
	grid = max(1, grid)
	topK = max(1, topK)

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	stepW, stepH := w/grid, h/grid

	var blocks []float64
	for r := 0; r < grid; r++ {
		for c := 0; c < grid; c++ {
			cell := image.Rect(c*stepW, r*stepH, (c+1)*stepW, (r+1)*stepH)
			if cell.Empty() {
				continue
			}
			blocks = append(blocks, laplacianVariance(gray, cell))
		}
	}
	if len(blocks) == 0 {
		return 0
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(blocks)))
	if len(blocks) > topK {
		blocks = blocks[:topK]
	}
	var sum float64
	for _, b := range blocks {
		sum += b
	}
	return sum / float64(len(blocks))
}

// laplacianVariance returns the population variance of the 4-neighbour
// Laplacian over cell. Borders mirror without repeating the edge pixel.
func laplacianVariance(gray *image.Gray, cell image.Rectangle) float64 {
	w, h := cell.Dx(), cell.Dy()
	px := func(x, y int) int64 {
		return int64(gray.Pix[(cell.Min.Y+y)*gray.Stride+cell.Min.X+x])
	}

	var sum, sumSq int64
	for y := 0; y < h; y++ {
		up, down := reflect101(y-1, h), reflect101(y+1, h)
		for x := 0; x < w; x++ {
			left, right := reflect101(x-1, w), reflect101(x+1, w)
			v := px(x, up) + px(x, down) + px(left, y) + px(right, y) - 4*px(x, y)
			sum += v
			sumSq += v * v
		}
	}

	n := float64(w * h)
	mean := float64(sum) / n
	return float64(sumSq)/n - mean*mean
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - 2 - i
	}
	return i
}

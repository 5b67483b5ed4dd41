package quality

import (
	"image"
	"math"

	"photocull/internal/config"
	"photocull/internal/imageio"
	"photocull/internal/models"
)

// Exposure flags
const (
	FlagUnderexposed      = "underexposed"
	FlagOverexposed       = "overexposed"
	FlagHighlightClipping = "highlight_clipping"
	FlagShadowCrushing    = "shadow_crushing"
	FlagLowContrast       = "low_contrast"
)

const (
	whiteLevel = 250
	blackLevel = 5
	midGray    = 128.0
)

// MeasureExposure computes luminance statistics. Score and Flags are left
// empty; they depend on thresholds and are filled by ScoreExposure.
func MeasureExposure(img image.Image) models.ExposureResult {
	gray := imageio.ToGray(img)

	var hist [256]int
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for _, v := range row {
			hist[v]++
		}
	}
	n := w * h
	if n == 0 {
		return models.ExposureResult{}
	}

	var white, black int
	for v := whiteLevel; v < 256; v++ {
		white += hist[v]
	}
	for v := 0; v <= blackLevel; v++ {
		black += hist[v]
	}

	p1 := percentile(&hist, n, 1)
	p99 := percentile(&hist, n, 99)

	return models.ExposureResult{
		P1:           int(p1),
		P5:           int(percentile(&hist, n, 5)),
		P50:          int(percentile(&hist, n, 50)),
		P95:          int(percentile(&hist, n, 95)),
		P99:          int(p99),
		WhiteRatio:   float64(white) / float64(n),
		BlackRatio:   float64(black) / float64(n),
		DynamicRange: int(p99 - p1),
	}
}

// percentile interpolates linearly between the closest ranks, matching the
// usual definition over the sorted pixel values.
func percentile(hist *[256]int, n int, q float64) float64 {
	pos := q / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)

	a := valueAtRank(hist, lo)
	if frac == 0 || lo+1 >= n {
		return float64(a)
	}
	b := valueAtRank(hist, lo+1)
	return float64(a) + frac*float64(b-a)
}

func valueAtRank(hist *[256]int, rank int) int {
	seen := 0
	for v, c := range hist {
		seen += c
		if rank < seen {
			return v
		}
	}
	return 255
}

// ScoreExposure derives the exposure score and flags from raw statistics
func ScoreExposure(raw models.ExposureResult, cfg config.ScoringConfig) models.ExposureResult {
	res := raw
	res.Flags = nil
	score := 100.0

	midDev := math.Abs(float64(raw.P50)-midGray) / midGray
	score -= math.Min(30, midDev*30)

	if raw.P50 < cfg.LowLight {
		res.Flags = append(res.Flags, FlagUnderexposed)
		score -= 20
	} else if raw.P50 > cfg.HighLight {
		res.Flags = append(res.Flags, FlagOverexposed)
		score -= 20
	}

	if raw.WhiteRatio > 0.1 {
		res.Flags = append(res.Flags, FlagHighlightClipping)
		score -= 20 * (raw.WhiteRatio * 10)
	}
	if raw.BlackRatio > 0.2 {
		res.Flags = append(res.Flags, FlagShadowCrushing)
		score -= 10 * (raw.BlackRatio * 5)
	}
	if raw.DynamicRange < 50 {
		res.Flags = append(res.Flags, FlagLowContrast)
		score -= 10
	}

	res.Score = math.Max(0, score)
	return res
}

package embed

import (
	"context"
	"image"
)

// ModelHSVHist is a colour histogram: 8 hue × 8 saturation × 8 value bins
const ModelHSVHist = "hsv_hist"

const hsvBins = 8

// HSVHistogram embeds a photo as its normalised HSV colour distribution.
// It needs no model weights and is the default for burst grouping.
type HSVHistogram struct{}

func NewHSVHistogram() *HSVHistogram {
	return &HSVHistogram{}
}

func (h *HSVHistogram) Model() string { return ModelHSVHist }

func (h *HSVHistogram) Dim() int { return hsvBins * hsvBins * hsvBins }

func (h *HSVHistogram) Extract(_ context.Context, batch []image.Image) ([][]float32, error) {
	out := make([][]float32, len(batch))
	for i, img := range batch {
		out[i] = h.histogram(img)
	}
	return out, nil
}

func (h *HSVHistogram) histogram(img image.Image) []float32 {
	hist := make([]float32, h.Dim())
	b := img.Bounds()
	var total float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			hue, sat, val := toHSV(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			hb := min(hue*hsvBins/180, hsvBins-1)
			sb := sat * hsvBins / 256
			vb := val * hsvBins / 256
			hist[hb*hsvBins*hsvBins+sb*hsvBins+vb]++
			total++
		}
	}
	for i := range hist {
		hist[i] = float32(float64(hist[i]) / (total + 1e-6))
	}
	return Normalize(hist)
}

// toHSV converts 8-bit RGB to hue in 0..179 and saturation, value in 0..255
func toHSV(r, g, b uint8) (hue, sat, val int) {
	ri, gi, bi := int(r), int(g), int(b)
	maxC := max(ri, gi, bi)
	minC := min(ri, gi, bi)
	val = maxC
	delta := maxC - minC
	if maxC == 0 {
		return 0, 0, 0
	}
	sat = (255*delta + maxC/2) / maxC
	if delta == 0 {
		return 0, sat, val
	}

	var deg float64
	switch maxC {
	case ri:
		deg = 60 * float64(gi-bi) / float64(delta)
	case gi:
		deg = 120 + 60*float64(bi-ri)/float64(delta)
	default:
		deg = 240 + 60*float64(ri-gi)/float64(delta)
	}
	if deg < 0 {
		deg += 360
	}
	hue = int(deg/2 + 0.5)
	if hue >= 180 {
		hue -= 180
	}
	return hue, sat, val
}

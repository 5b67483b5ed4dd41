package quality

import (
	"fmt"
	"image"
	"math"

	"photocull/internal/config"
	"photocull/internal/imageio"
	"photocull/internal/models"
)

// Reasons attached to records
const (
	ReasonBlurry    = "Blurry"
	ReasonReadError = "Read Error"
	ReasonLowScore  = "Low Score"
	exceptionPrefix = "Exception: "
)

// EmotionDetector optionally scores facial expression in a photo.
// Score is on a 0..100 scale; ok is false when no face was found.
type EmotionDetector interface {
	Detect(img image.Image) (label string, score float64, ok bool, err error)
}

// MeasureFile decodes path and takes every raw measurement. It never panics
// and never returns an error: failures are reported through ReadError or
// Exception on the result. A detector error only drops the emotion.
func MeasureFile(path string, cfg config.Config, detector EmotionDetector) (m models.Measurements) {
	defer func() {
		if r := recover(); r != nil {
			m = models.Measurements{Exception: fmt.Sprint(r)}
		}
	}()

	img, err := imageio.Decode(path, cfg.Decode.LongEdge)
	if err != nil {
		return models.Measurements{ReadError: err.Error()}
	}

	sharp := Sharpness(img, cfg.Scoring)
	exp := MeasureExposure(img)

	m = models.Measurements{
		Sharpness:    sharp.Score,
		P1:           exp.P1,
		P5:           exp.P5,
		P50:          exp.P50,
		P95:          exp.P95,
		P99:          exp.P99,
		WhiteRatio:   exp.WhiteRatio,
		BlackRatio:   exp.BlackRatio,
		DynamicRange: exp.DynamicRange,
	}

	if detector != nil {
		label, score, ok, err := detector.Detect(img)
		if err != nil {
			m.EmotionError = err.Error()
			return m
		}
		if ok {
			m.Emotion = label
			m.EmotionScore = &score
		}
	}
	return m
}

// Rescore derives a PhotoRecord from raw measurements under the current
// thresholds. Cache hits and fresh measurements both go through here, so the
// two paths always agree.
func Rescore(path string, m models.Measurements, cfg config.ScoringConfig) *models.PhotoRecord {
	rec := models.NewPhotoRecord(path)

	switch {
	case m.ReadError != "":
		rec.IsUnusable = true
		rec.Reasons = []string{ReasonReadError}
		return rec
	case m.Exception != "":
		rec.IsUnusable = true
		rec.Reasons = []string{exceptionPrefix + m.Exception}
		return rec
	}

	sharp := models.SharpnessResult{
		Score:    m.Sharpness,
		IsBlurry: m.Sharpness < cfg.SharpnessThreshold,
	}
	exp := ScoreExposure(models.ExposureResult{
		P1:           m.P1,
		P5:           m.P5,
		P50:          m.P50,
		P95:          m.P95,
		P99:          m.P99,
		WhiteRatio:   m.WhiteRatio,
		BlackRatio:   m.BlackRatio,
		DynamicRange: m.DynamicRange,
	}, cfg)
	rec.Sharpness = &sharp
	rec.Exposure = &exp

	sharpContrib := math.Min(sharp.Score/cfg.SharpnessThreshold, 2.0) * 50
	score := sharpContrib*cfg.WeightSharpness + exp.Score*cfg.WeightExposure

	if sharp.IsBlurry {
		rec.Reasons = append(rec.Reasons, ReasonBlurry)
		score = math.Min(score, cfg.BlurCap)
	}
	rec.Reasons = append(rec.Reasons, exp.Flags...)
	if rec.HasReason(FlagUnderexposed) || rec.HasReason(FlagOverexposed) {
		score = math.Min(score, cfg.ExposureCap)
	}

	if m.EmotionScore != nil {
		es := *m.EmotionScore
		rec.Emotion = m.Emotion
		rec.EmotionScore = &es
		score += (es - 50) * cfg.EmotionWeight
	}
	score = math.Max(0, math.Min(100, score))

	rec.TechnicalScore = score
	if score < cfg.UnusableBelow {
		rec.IsUnusable = true
		rec.Reasons = append(rec.Reasons, ReasonLowScore)
	}
	return rec
}

package models

// NoiseGroupID labels a photo that did not join any similarity group
const NoiseGroupID = -1

// SharpnessResult holds the sharpness measurement and its verdict
type SharpnessResult struct {
	Score    float64 `json:"score"`
	IsBlurry bool    `json:"is_blurry"`
}

// ExposureResult holds luminance statistics and the derived exposure score
type ExposureResult struct {
	Score        float64  `json:"score"`
	P1           int      `json:"p1"`
	P5           int      `json:"p5"`
	P50          int      `json:"p50"`
	P95          int      `json:"p95"`
	P99          int      `json:"p99"`
	WhiteRatio   float64  `json:"white_ratio"`
	BlackRatio   float64  `json:"black_ratio"`
	DynamicRange int      `json:"dynamic_range"`
	Flags        []string `json:"flags,omitempty"`
}

// Measurements are the raw, threshold-independent per-photo values.
// This is what the signature cache stores; scores and flags are always
// re-derived from it under the current configuration.
type Measurements struct {
	Sharpness    float64  `json:"sharpness"`
	P1           int      `json:"p1"`
	P5           int      `json:"p5"`
	P50          int      `json:"p50"`
	P95          int      `json:"p95"`
	P99          int      `json:"p99"`
	WhiteRatio   float64  `json:"white_ratio"`
	BlackRatio   float64  `json:"black_ratio"`
	DynamicRange int      `json:"dynamic_range"`
	Emotion      string   `json:"emotion,omitempty"`
	EmotionScore *float64 `json:"emotion_score,omitempty"`

	// ReadError is set when the file could not be opened or decoded.
	ReadError string `json:"read_error,omitempty"`
	// Exception is set when measuring panicked or failed unexpectedly.
	// It is never cached.
	Exception string `json:"-"`
	// EmotionError is set when the optional emotion detector failed. The
	// technical measurements still stand; only the emotion is missing.
	EmotionError string `json:"-"`
}

// Failed reports whether the measurement represents a per-file failure
func (m Measurements) Failed() bool {
	return m.ReadError != "" || m.Exception != ""
}

// PhotoRecord is the per-photo output of the engine
type PhotoRecord struct {
	Path           string           `json:"path"`
	CaptureTS      float64          `json:"capture_ts"`
	Sharpness      *SharpnessResult `json:"sharpness,omitempty"`
	Exposure       *ExposureResult  `json:"exposure,omitempty"`
	TechnicalScore float64          `json:"technical_score"`
	IsUnusable     bool             `json:"is_unusable"`
	Reasons        []string         `json:"reasons,omitempty"`
	GroupID        int              `json:"group_id"`
	GroupSize      int              `json:"group_size"`
	RankInGroup    int              `json:"rank_in_group"`
	IsGroupBest    bool             `json:"is_group_best"`
	Emotion        string           `json:"emotion,omitempty"`
	EmotionScore   *float64         `json:"emotion_score,omitempty"`
}

// NewPhotoRecord returns an ungrouped record for path
func NewPhotoRecord(path string) *PhotoRecord {
	return &PhotoRecord{
		Path:        path,
		GroupID:     NoiseGroupID,
		GroupSize:   1,
		RankInGroup: 1,
	}
}

// HasReason reports whether reason is among the record's reasons
func (r *PhotoRecord) HasReason(reason string) bool {
	for _, v := range r.Reasons {
		if v == reason {
			return true
		}
	}
	return false
}

// GroupItem is one member of a group (or of the noise bucket) in a report
type GroupItem struct {
	Path           string  `json:"path"`
	TechnicalScore float64 `json:"technical_score"`
	RankInGroup    int     `json:"rank_in_group"`
	IsGroupBest    bool    `json:"is_group_best"`
}

// GroupInfo represents a group of visually near-duplicate photos
type GroupInfo struct {
	ID    int         `json:"group_id"`
	Size  int         `json:"group_size"`
	Best  []string    `json:"best"`  // Paths of the top-K members
	Items []GroupItem `json:"items"` // Sorted by score desc, path asc
}

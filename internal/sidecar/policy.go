package sidecar

import (
	"fmt"

	"photocull/internal/config"
	"photocull/internal/models"
)

// Labels written to xmp:Label
const (
	LabelRejected = "Rejected"
	LabelGreen    = "Green"
)

// Keyword namespace owned by photocull. Keywords outside it are never touched.
const KeywordPrefix = "AI/"

// Decision is what gets applied to one sidecar
type Decision struct {
	Rating   int
	Label    string // Empty leaves the existing label alone
	Keywords []string
}

// GroupContext summarises a group for rating decisions
type GroupContext struct {
	BestScore   float64
	RunnerUp    float64 // Score at rank 2; meaningless when Size < 2
	Size        int
	Initialized bool
}

// UniqueBest reports whether rank 1 strictly outscores rank 2
func (g GroupContext) UniqueBest() bool {
	return g.Size < 2 || g.BestScore > g.RunnerUp
}

// GroupContexts builds the context of every genuine group in records
func GroupContexts(records []*models.PhotoRecord) map[int]GroupContext {
	out := make(map[int]GroupContext)
	for _, rec := range records {
		if rec.GroupID == models.NoiseGroupID {
			continue
		}
		g := out[rec.GroupID]
		g.Initialized = true
		g.Size = rec.GroupSize
		switch rec.RankInGroup {
		case 1:
			g.BestScore = rec.TechnicalScore
		case 2:
			g.RunnerUp = rec.TechnicalScore
		}
		out[rec.GroupID] = g
	}
	return out
}

// Derive maps a scored, grouped record to its rating, label and keywords.
// gc is ignored for ungrouped records.
func Derive(rec *models.PhotoRecord, gc GroupContext, cfg config.SidecarConfig) Decision {
	var d Decision
	for _, reason := range rec.Reasons {
		d.Keywords = append(d.Keywords, KeywordPrefix+reason)
	}

	switch {
	case rec.IsUnusable:
		d.Rating = 1
		d.Label = LabelRejected
	case rec.TechnicalScore >= cfg.Band5:
		d.Rating = 5
		d.Label = LabelGreen
	case rec.TechnicalScore >= cfg.Band4:
		d.Rating = 4
	case rec.TechnicalScore >= cfg.Band3:
		d.Rating = 3
	default:
		d.Rating = 2
	}

	if rec.GroupID == models.NoiseGroupID || rec.GroupSize < 2 {
		return d
	}

	if !rec.IsUnusable {
		switch {
		case rec.RankInGroup == 1:
			d.Rating = max(d.Rating, cfg.BestMinRating)
			if gc.UniqueBest() {
				d.Rating = max(d.Rating, cfg.Top1Rating)
			}
		case !rec.IsGroupBest:
			switch cfg.NonBestMode {
			case config.NonBestCap:
				d.Rating = min(d.Rating, cfg.NonBestMaxRating)
			case config.NonBestClear:
				d.Rating = 0
			}
		}
	}

	if cfg.AddKeywords {
		d.Keywords = append(d.Keywords,
			fmt.Sprintf("%sGroup/%d", KeywordPrefix, rec.GroupID),
			fmt.Sprintf("%sGroupRank/%d", KeywordPrefix, rec.RankInGroup),
		)
		if rec.IsGroupBest {
			d.Keywords = append(d.Keywords, KeywordPrefix+"BestInGroup")
		} else if gc.Initialized && gc.BestScore-rec.TechnicalScore >= cfg.SimilarButWorseDelta {
			d.Keywords = append(d.Keywords, KeywordPrefix+"Similar")
		}
	}
	return d
}

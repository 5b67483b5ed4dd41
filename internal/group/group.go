package group

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"photocull/internal/models"
)

// Result is the outcome of folding cluster labels into ranked groups
type Result struct {
	Groups []models.GroupInfo // Sorted by size desc, then id asc
	Noise  []models.GroupItem // Sorted by score desc, then path asc
}

// Assemble assigns group fields on every record from labels (keyed by path;
// missing paths count as noise) and returns the ranked groups. Within a group
// members are ordered by technical score descending then path, and the first
// topK are marked best.
func Assemble(records []*models.PhotoRecord, labels map[string]int, topK int) Result {
	topK = max(topK, 1)

	byID := make(map[int][]*models.PhotoRecord)
	for _, rec := range records {
		id, ok := labels[rec.Path]
		if !ok || id < 0 {
			id = models.NoiseGroupID
		}
		rec.GroupID = id
		byID[id] = append(byID[id], rec)
	}

	var res Result
	for id, members := range byID {
		sortMembers(members)

		if id == models.NoiseGroupID {
			for _, rec := range members {
				rec.GroupSize = 1
				rec.RankInGroup = 1
				rec.IsGroupBest = false
				res.Noise = append(res.Noise, itemOf(rec))
			}
			continue
		}

		info := models.GroupInfo{ID: id, Size: len(members)}
		for i, rec := range members {
			rec.GroupSize = len(members)
			rec.RankInGroup = i + 1
			rec.IsGroupBest = rec.RankInGroup <= topK
			if rec.IsGroupBest {
				info.Best = append(info.Best, rec.Path)
			}
			info.Items = append(info.Items, itemOf(rec))
		}
		res.Groups = append(res.Groups, info)
	}

	sort.Slice(res.Groups, func(i, j int) bool {
		a, b := res.Groups[i], res.Groups[j]
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return a.ID < b.ID
	})
	sort.Slice(res.Noise, func(i, j int) bool {
		a, b := res.Noise[i], res.Noise[j]
		if a.TechnicalScore != b.TechnicalScore {
			return a.TechnicalScore > b.TechnicalScore
		}
		return a.Path < b.Path
	})
	return res
}

// LabelsByPath pairs clustering output with the paths it was computed for
func LabelsByPath(paths []string, labels []int) (map[string]int, error) {
	if len(paths) != len(labels) {
		return nil, fmt.Errorf("got %d labels for %d paths", len(labels), len(paths))
	}
	m := make(map[string]int, len(paths))
	for i, p := range paths {
		m[p] = labels[i]
	}
	return m, nil
}

func sortMembers(members []*models.PhotoRecord) {
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.TechnicalScore != b.TechnicalScore {
			return a.TechnicalScore > b.TechnicalScore
		}
		return a.Path < b.Path
	})
}

func itemOf(rec *models.PhotoRecord) models.GroupItem {
	return models.GroupItem{
		Path:           rec.Path,
		TechnicalScore: rec.TechnicalScore,
		RankInGroup:    rec.RankInGroup,
		IsGroupBest:    rec.IsGroupBest,
	}
}

// Report is the groups.json document written next to the results
type Report struct {
	InputDir       string             `json:"input_dir"`
	Model          string             `json:"embed_model"`
	ThumbLongEdge  int                `json:"thumb_long_edge"`
	Eps            float64            `json:"eps"`
	MinSamples     int                `json:"min_samples"`
	NeighborWindow int                `json:"neighbor_window"`
	TimeWindowSecs float64            `json:"time_window_secs"`
	TopK           int                `json:"topk"`
	Groups         []models.GroupInfo `json:"groups"`
	NoiseGroupID   int                `json:"noise_group_id"`
	Noise          []models.GroupItem `json:"noise"`
}

// WriteReport writes r as indented JSON to path
func WriteReport(path string, r Report) error {
	r.NoiseGroupID = models.NoiseGroupID
	if r.Groups == nil {
		r.Groups = []models.GroupInfo{}
	}
	if r.Noise == nil {
		r.Noise = []models.GroupItem{}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

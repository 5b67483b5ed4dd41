package cluster

import (
	"fmt"
	"math"

	"photocull/internal/config"
	"photocull/internal/models"
)

// Params controls windowed clustering
type Params struct {
	Eps        float64 // Cosine distance; neighbors need similarity >= 1-Eps
	MinSamples int     // Core point needs this many points including itself
	Window     int     // Neighbor search covers indices [i-Window, i+Window]

	// TimeWindowSecs additionally requires |Δt| <= TimeWindowSecs when > 0
	// and timestamps are supplied.
	TimeWindowSecs float64

	// Progress, if set, is called with phase "neighbors" or "clusters"
	Progress func(phase string, done, total int)
}

// ParamsFrom builds Params from the grouping configuration
func ParamsFrom(cfg config.GroupingConfig) Params {
	return Params{
		Eps:            cfg.Eps,
		MinSamples:     cfg.MinSamples,
		Window:         cfg.NeighborWindow,
		TimeWindowSecs: cfg.TimeWindowSecs,
	}
}

// Windowed runs density clustering over L2-normalised embeddings, comparing
// each point only with its index neighbours inside the window. It returns one
// label per point; models.NoiseGroupID marks points in no cluster. Labels are
// deterministic for a given input order.
func Windowed(embs [][]float32, timestamps []float64, p Params) ([]int, error) {
	if p.Eps < 0 || p.Eps > 1 || math.IsNaN(p.Eps) {
		return nil, fmt.Errorf("%w: eps %v outside [0,1]", config.ErrConfiguration, p.Eps)
	}
	n := len(embs)
	if timestamps != nil && len(timestamps) != n {
		return nil, fmt.Errorf("got %d timestamps for %d embeddings", len(timestamps), n)
	}
	if n == 0 {
		return []int{}, nil
	}

	window := max(p.Window, 1)
	minSamples := max(p.MinSamples, 1)
	minSim := 1 - p.Eps
	timeGated := p.TimeWindowSecs > 0 && timestamps != nil

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		lo, hi := max(0, i-window), min(n, i+window+1)
		for j := lo; j < hi; j++ {
			if j == i {
				continue
			}
			if timeGated && math.Abs(timestamps[i]-timestamps[j]) > p.TimeWindowSecs {
				continue
			}
			if dot(embs[i], embs[j]) >= minSim {
				neighbors[i] = append(neighbors[i], j)
			}
		}
		if p.Progress != nil && (i%50 == 0 || i == n-1) {
			p.Progress("neighbors", i+1, n)
		}
	}

	core := make([]bool, n)
	for i := range core {
		core[i] = 1+len(neighbors[i]) >= minSamples
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = models.NoiseGroupID
	}
	visited := make([]bool, n)
	clusterID := 0

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		if !core[i] {
			continue
		}

		labels[i] = clusterID
		queue := []int{i}
		for len(queue) > 0 {
			pt := queue[0]
			queue = queue[1:]
			if !core[pt] {
				continue
			}
			for _, q := range neighbors[pt] {
				if !visited[q] {
					visited[q] = true
					if core[q] {
						queue = append(queue, q)
					}
				}
				if labels[q] == models.NoiseGroupID {
					labels[q] = clusterID
				}
			}
		}
		clusterID++
		if p.Progress != nil && clusterID%10 == 0 {
			p.Progress("clusters", clusterID, n)
		}
	}

	return labels, nil
}

// dot is the cosine similarity of two unit vectors
func dot(a, b []float32) float64 {
	var s float64
	for k := range min(len(a), len(b)) {
		s += float64(a[k]) * float64(b[k])
	}
	return s
}

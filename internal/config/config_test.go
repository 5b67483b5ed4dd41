package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1024, cfg.Decode.LongEdge)
	assert.Equal(t, 100.0, cfg.Scoring.SharpnessThreshold)
	assert.Equal(t, 40, cfg.Scoring.LowLight)
	assert.Equal(t, 220, cfg.Scoring.HighLight)
	assert.Equal(t, 0.6, cfg.Scoring.WeightSharpness)
	assert.Equal(t, 0.4, cfg.Scoring.WeightExposure)
	assert.Equal(t, "hsv_hist", cfg.Grouping.Model)
	assert.Equal(t, 0.12, cfg.Grouping.Eps)
	assert.Equal(t, 2, cfg.Grouping.MinSamples)
	assert.Equal(t, 80, cfg.Grouping.NeighborWindow)
	assert.Equal(t, 2, cfg.Grouping.TopK)
	assert.Equal(t, NonBestKeep, cfg.Sidecar.NonBestMode)
	assert.True(t, cfg.Sidecar.AddKeywords)
	assert.GreaterOrEqual(t, cfg.Workers, 1)
	assert.LessOrEqual(t, cfg.Workers, 8)
	require.NoError(t, cfg.Validate())
}

func TestLoadProfiles(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		profile   string
		threshold float64
		lowLight  int
		wExposure float64
	}{
		{"daylight", 100, 40, 0.4},
		{"night", 100, 20, 0.3},
		{"event_indoor", 80, 40, 0.4},
		{"outdoor_portrait", 100, 40, 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			cfg, err := Load("", tt.profile)
			require.NoError(t, err)
			assert.Equal(t, tt.profile, cfg.Profile)
			assert.Equal(t, tt.threshold, cfg.Scoring.SharpnessThreshold)
			assert.Equal(t, tt.lowLight, cfg.Scoring.LowLight)
			assert.Equal(t, tt.wExposure, cfg.Scoring.WeightExposure)
		})
	}
}

func TestLoadUnknownProfile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("", "underwater")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "custom.yaml")
	content := "grouping:\n  eps: 0.2\n  topk: 3\nscoring:\n  low_light: 25\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("PHOTOCULL_GROUPING_TOPK", "4")

	cfg, err := Load(path, "night")
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.Grouping.Eps)
	assert.Equal(t, 4, cfg.Grouping.TopK, "env overrides file")
	assert.Equal(t, 25, cfg.Scoring.LowLight, "file overrides profile")
	assert.Equal(t, 0.3, cfg.Scoring.WeightExposure, "profile overrides default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"eps above one", func(c *Config) { c.Grouping.Eps = 1.5 }},
		{"eps negative", func(c *Config) { c.Grouping.Eps = -0.1 }},
		{"negative weight", func(c *Config) { c.Scoring.WeightExposure = -1 }},
		{"low above high", func(c *Config) { c.Scoring.LowLight = 230 }},
		{"zero long edge", func(c *Config) { c.Decode.LongEdge = 0 }},
		{"zero topk", func(c *Config) { c.Grouping.TopK = 0 }},
		{"unknown time source", func(c *Config) { c.Grouping.TimeSource = "gps" }},
		{"unknown nonbest mode", func(c *Config) { c.Sidecar.NonBestMode = "delete" }},
		{"rating out of range", func(c *Config) { c.Sidecar.Top1Rating = 6 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestProfiles(t *testing.T) {
	assert.Equal(t, []string{"daylight", "event_indoor", "night", "outdoor_portrait"}, Profiles())
}

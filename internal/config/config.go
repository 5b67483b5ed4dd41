package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfiguration marks an invalid configuration. It is the only error
// category that aborts a batch.
var ErrConfiguration = errors.New("configuration error")

// EnvPrefix is prepended to every environment override, e.g. PHOTOCULL_GROUPING_EPS
const EnvPrefix = "PHOTOCULL"

// Time sources for capture timestamps
const (
	TimeSourceAuto  = "auto"
	TimeSourceExif  = "exif"
	TimeSourceMtime = "mtime"
)

// Policies for group members that are not the best
const (
	NonBestKeep  = "keep"
	NonBestCap   = "cap"
	NonBestClear = "clear"
)

// Config is the immutable configuration snapshot handed to every stage
type Config struct {
	Profile  string         `mapstructure:"profile" yaml:"profile"`
	Workers  int            `mapstructure:"workers" yaml:"workers"`
	Decode   DecodeConfig   `mapstructure:"decode" yaml:"decode"`
	Scoring  ScoringConfig  `mapstructure:"scoring" yaml:"scoring"`
	Grouping GroupingConfig `mapstructure:"grouping" yaml:"grouping"`
	Sidecar  SidecarConfig  `mapstructure:"sidecar" yaml:"sidecar"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type DecodeConfig struct {
	LongEdge int `mapstructure:"long_edge" yaml:"long_edge"`
}

type ScoringConfig struct {
	SharpnessThreshold float64 `mapstructure:"sharpness_threshold" yaml:"sharpness_threshold"`
	LowLight           int     `mapstructure:"low_light" yaml:"low_light"`
	HighLight          int     `mapstructure:"high_light" yaml:"high_light"`
	WeightSharpness    float64 `mapstructure:"weight_sharpness" yaml:"weight_sharpness"`
	WeightExposure     float64 `mapstructure:"weight_exposure" yaml:"weight_exposure"`
	BlurCap            float64 `mapstructure:"blur_cap" yaml:"blur_cap"`
	ExposureCap        float64 `mapstructure:"exposure_cap" yaml:"exposure_cap"`
	UnusableBelow      float64 `mapstructure:"unusable_below" yaml:"unusable_below"`
	EmotionWeight      float64 `mapstructure:"emotion_weight" yaml:"emotion_weight"`
	SharpnessGrid      int     `mapstructure:"sharpness_grid" yaml:"sharpness_grid"`
	SharpnessTopK      int     `mapstructure:"sharpness_top_k" yaml:"sharpness_top_k"`
	ReferenceWidth     int     `mapstructure:"reference_width" yaml:"reference_width"`
}

type GroupingConfig struct {
	Model          string  `mapstructure:"model" yaml:"model"`
	ThumbLongEdge  int     `mapstructure:"thumb_long_edge" yaml:"thumb_long_edge"`
	Eps            float64 `mapstructure:"eps" yaml:"eps"`
	MinSamples     int     `mapstructure:"min_samples" yaml:"min_samples"`
	NeighborWindow int     `mapstructure:"neighbor_window" yaml:"neighbor_window"`
	TimeWindowSecs float64 `mapstructure:"time_window_secs" yaml:"time_window_secs"`
	TimeSource     string  `mapstructure:"time_source" yaml:"time_source"`
	TopK           int     `mapstructure:"topk" yaml:"topk"`
	BatchSize      int     `mapstructure:"batch_size" yaml:"batch_size"`
	EmbeddingURL   string  `mapstructure:"embedding_url" yaml:"embedding_url"`
	EmbeddingDim   int     `mapstructure:"embedding_dim" yaml:"embedding_dim"`
}

type SidecarConfig struct {
	BestMinRating        int     `mapstructure:"best_min_rating" yaml:"best_min_rating"`
	Top1Rating           int     `mapstructure:"top1_rating" yaml:"top1_rating"`
	NonBestMode          string  `mapstructure:"nonbest_mode" yaml:"nonbest_mode"`
	NonBestMaxRating     int     `mapstructure:"nonbest_max_rating" yaml:"nonbest_max_rating"`
	AddKeywords          bool    `mapstructure:"add_keywords" yaml:"add_keywords"`
	SimilarButWorseDelta float64 `mapstructure:"similar_but_worse_delta" yaml:"similar_but_worse_delta"`
	Workers              int     `mapstructure:"workers" yaml:"workers"`
	Band5                float64 `mapstructure:"band5" yaml:"band5"`
	Band4                float64 `mapstructure:"band4" yaml:"band4"`
	Band3                float64 `mapstructure:"band3" yaml:"band3"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the built-in daylight configuration
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults alone always decode.
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", "daylight")
	v.SetDefault("workers", defaultWorkers())

	v.SetDefault("decode.long_edge", 1024)

	v.SetDefault("scoring.sharpness_threshold", 100.0)
	v.SetDefault("scoring.low_light", 40)
	v.SetDefault("scoring.high_light", 220)
	v.SetDefault("scoring.weight_sharpness", 0.6)
	v.SetDefault("scoring.weight_exposure", 0.4)
	v.SetDefault("scoring.blur_cap", 25.0)
	v.SetDefault("scoring.exposure_cap", 55.0)
	v.SetDefault("scoring.unusable_below", 30.0)
	v.SetDefault("scoring.emotion_weight", 0.2)
	v.SetDefault("scoring.sharpness_grid", 4)
	v.SetDefault("scoring.sharpness_top_k", 4)
	v.SetDefault("scoring.reference_width", 1024)

	v.SetDefault("grouping.model", "hsv_hist")
	v.SetDefault("grouping.thumb_long_edge", 256)
	v.SetDefault("grouping.eps", 0.12)
	v.SetDefault("grouping.min_samples", 2)
	v.SetDefault("grouping.neighbor_window", 80)
	v.SetDefault("grouping.time_window_secs", 6.0)
	v.SetDefault("grouping.time_source", TimeSourceAuto)
	v.SetDefault("grouping.topk", 2)
	v.SetDefault("grouping.batch_size", 32)
	v.SetDefault("grouping.embedding_url", "http://localhost:8000")
	v.SetDefault("grouping.embedding_dim", 768)

	v.SetDefault("sidecar.best_min_rating", 4)
	v.SetDefault("sidecar.top1_rating", 5)
	v.SetDefault("sidecar.nonbest_mode", NonBestKeep)
	v.SetDefault("sidecar.nonbest_max_rating", 2)
	v.SetDefault("sidecar.add_keywords", true)
	v.SetDefault("sidecar.similar_but_worse_delta", 15.0)
	v.SetDefault("sidecar.workers", 4)
	v.SetDefault("sidecar.band5", 80.0)
	v.SetDefault("sidecar.band4", 60.0)
	v.SetDefault("sidecar.band3", 40.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Load builds the effective configuration. Precedence, lowest first:
// defaults, profile, config file, environment.
// An empty configPath searches for photocull.yaml in the working directory.
func Load(configPath, profile string) (Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if profile == "" {
		profile = "daylight"
	}
	if err := applyProfile(v, profile); err != nil {
		return Config{}, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("photocull")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Profile = profile

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks parameter ranges. Every error wraps ErrConfiguration.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Workers < 1 {
		add("workers must be >= 1, got %d", c.Workers)
	}
	if c.Decode.LongEdge <= 0 {
		add("decode.long_edge must be > 0, got %d", c.Decode.LongEdge)
	}

	s := c.Scoring
	if s.SharpnessThreshold <= 0 {
		add("scoring.sharpness_threshold must be > 0, got %g", s.SharpnessThreshold)
	}
	if s.LowLight < 0 || s.LowLight > 255 || s.HighLight < 0 || s.HighLight > 255 {
		add("scoring light thresholds must be within 0..255")
	} else if s.LowLight >= s.HighLight {
		add("scoring.low_light (%d) must be below scoring.high_light (%d)", s.LowLight, s.HighLight)
	}
	if s.WeightSharpness < 0 || s.WeightExposure < 0 {
		add("scoring weights must not be negative")
	}
	if s.SharpnessGrid < 1 || s.SharpnessTopK < 1 {
		add("scoring.sharpness_grid and scoring.sharpness_top_k must be >= 1")
	}
	if s.ReferenceWidth <= 0 {
		add("scoring.reference_width must be > 0, got %d", s.ReferenceWidth)
	}

	g := c.Grouping
	if g.Eps < 0 || g.Eps > 1 {
		add("grouping.eps must be within [0,1], got %g", g.Eps)
	}
	if g.ThumbLongEdge <= 0 {
		add("grouping.thumb_long_edge must be > 0, got %d", g.ThumbLongEdge)
	}
	if g.TopK < 1 {
		add("grouping.topk must be >= 1, got %d", g.TopK)
	}
	if g.BatchSize < 1 {
		add("grouping.batch_size must be >= 1, got %d", g.BatchSize)
	}
	if g.TimeWindowSecs < 0 {
		add("grouping.time_window_secs must not be negative")
	}
	switch g.TimeSource {
	case TimeSourceAuto, TimeSourceExif, TimeSourceMtime:
	default:
		add("unknown grouping.time_source %q", g.TimeSource)
	}

	sc := c.Sidecar
	switch sc.NonBestMode {
	case NonBestKeep, NonBestCap, NonBestClear:
	default:
		add("unknown sidecar.nonbest_mode %q", sc.NonBestMode)
	}
	if sc.Workers < 1 {
		add("sidecar.workers must be >= 1, got %d", sc.Workers)
	}
	for _, r := range []int{sc.BestMinRating, sc.Top1Rating, sc.NonBestMaxRating} {
		if r < 0 || r > 5 {
			add("sidecar ratings must be within 0..5, got %d", r)
			break
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"photocull/internal/cache"
	"photocull/internal/config"
	"photocull/internal/logger"
	"photocull/internal/metrics"
	"photocull/internal/storage"
)

var (
	configPath  string
	profile     string
	dbPath      string
	cacheDBPath string
	metricsFile string
	logLevel    string
	logFormat   string
	workers     int
	noProgress  bool
)

// Populated by the root pre-run hook for every subcommand
var (
	cfg config.Config
	log *logger.Logger
	mtr *metrics.Metrics
)

var rootCmd = &cobra.Command{
	Use:   "photocull",
	Short: "Score, group and rate photo shoots",
	Long: `photocull is a CLI tool for culling large photo shoots.

It scores every photo for technical quality (sharpness and exposure), groups
near-duplicate bursts with a time-aware density clustering of image
embeddings, and writes ratings, labels and keywords to XMP sidecars that
Lightroom picks up.

Example usage:
  photocull run ./shoot                   # Compute, group and write sidecars
  photocull compute ./shoot               # Score photos only
  photocull group ./shoot --report g.json # Group scored photos
  photocull write-xmp ./shoot             # Write sidecars from stored results
  photocull list                          # List groups
  photocull cull --dry-run                # Preview moving rejected photos`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	// Default database path
	homeDir, _ := os.UserHomeDir()
	defaultDB := filepath.Join(homeDir, ".photocull", storage.DefaultFile)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./photocull.yaml)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Scoring profile: daylight, night, event_indoor, outdoor_portrait")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "Path to SQLite database")
	rootCmd.PersistentFlags().StringVar(&cacheDBPath, "cache-db", "", "Path to the measurement cache (default next to --db)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text, json")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Number of parallel workers for scoring (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&noProgress, "quiet", "q", false, "Hide progress bars")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath, profile)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if cacheDBPath == "" {
		cacheDBPath = filepath.Join(filepath.Dir(dbPath), cache.DefaultFile)
	}

	log = logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	mtr, err = metrics.New()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	log.WithFields(map[string]any{
		"profile": cfg.Profile,
		"workers": cfg.Workers,
		"db":      dbPath,
	}).Debug("configuration loaded")
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if metricsFile == "" {
		return nil
	}
	return mtr.WriteTextfile(metricsFile)
}

func openStore() (*storage.Storage, error) {
	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

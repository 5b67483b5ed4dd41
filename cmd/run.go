package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var skipXMP bool

var runCmd = &cobra.Command{
	Use:   "run <folder>",
	Short: "Compute, group and write sidecars in one go",
	Long: `Run every stage on a folder: compute, group and write-xmp.

Example:
  photocull run ./shoot
  photocull run ./shoot --profile event_indoor --report groups.json
  photocull run ./shoot --skip-xmp`,
	Args: cobra.ExactArgs(1),
	RunE: runAll,
}

func init() {
	runCmd.Flags().BoolVar(&rebuildCache, "rebuild-cache", false, "Ignore cached measurements and measure every photo again")
	runCmd.Flags().StringVar(&reportPath, "report", "", "Write the group report as JSON to this file")
	runCmd.Flags().BoolVar(&skipXMP, "skip-xmp", false, "Do not write sidecars")
	rootCmd.AddCommand(runCmd)
}

func runAll(cmd *cobra.Command, args []string) error {
	folder, err := absFolder(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	fmt.Printf("Processing %s (profile %s, model %s)...\n", folder, cfg.Profile, cfg.Grouping.Model)

	scored, err := computeStage(ctx, store, folder, rebuildCache)
	if err != nil {
		return err
	}
	if len(scored) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	_, result, err := groupStage(ctx, store, folder, reportPath)
	if err != nil {
		return err
	}

	unusable := 0
	for _, rec := range scored {
		if rec.IsUnusable {
			unusable++
		}
	}

	fmt.Println()
	fmt.Println("Run complete!")
	fmt.Printf("  Photos scored:  %d\n", len(scored))
	fmt.Printf("  Unusable:       %d\n", unusable)
	fmt.Printf("  Groups:         %d\n", len(result.Groups))
	fmt.Printf("  Singles:        %d\n", len(result.Noise))

	if skipXMP {
		return nil
	}
	stats, err := writeXMPStage(ctx, store, folder)
	if err != nil {
		return err
	}
	printSidecarStats(stats)
	return nil
}

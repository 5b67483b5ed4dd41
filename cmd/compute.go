package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCache bool

var computeCmd = &cobra.Command{
	Use:   "compute <folder>",
	Short: "Score photos for technical quality",
	Long: `Score every photo under a folder for sharpness and exposure.

Measurements are cached by file signature, so unchanged photos are only
rescored (cheap) when the profile or scoring weights change. Scores replace
any stored grouping for the folder; run 'group' afterwards.

Example:
  photocull compute ./shoot
  photocull compute ./shoot --profile night
  photocull compute ./shoot --rebuild-cache`,
	Args: cobra.ExactArgs(1),
	RunE: runCompute,
}

func init() {
	computeCmd.Flags().BoolVar(&rebuildCache, "rebuild-cache", false, "Ignore cached measurements and measure every photo again")
	rootCmd.AddCommand(computeCmd)
}

func runCompute(cmd *cobra.Command, args []string) error {
	folder, err := absFolder(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Scoring %s (profile %s)...\n", folder, cfg.Profile)
	records, err := computeStage(cmd.Context(), store, folder, rebuildCache)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	unusable := 0
	for _, rec := range records {
		if rec.IsUnusable {
			unusable++
		}
	}

	fmt.Println()
	fmt.Println("Scoring complete!")
	fmt.Printf("  Photos scored:  %d\n", len(records))
	fmt.Printf("  Usable:         %d\n", len(records)-unusable)
	fmt.Printf("  Unusable:       %d\n", unusable)
	fmt.Println()
	fmt.Println("Run 'photocull group " + args[0] + "' to group similar shots")
	return nil
}

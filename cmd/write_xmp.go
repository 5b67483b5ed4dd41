package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"photocull/internal/sidecar"
)

var writeXMPCmd = &cobra.Command{
	Use:   "write-xmp <folder>",
	Short: "Write ratings, labels and keywords to XMP sidecars",
	Long: `Write a photo.xmp sidecar next to every scored photo.

Ratings follow the score bands and group ranks, unusable photos are labelled
Rejected, and reasons and group membership are written as keywords under the
AI/ namespace. Keywords outside AI/ are never touched. Existing sidecars that
cannot be parsed are skipped, and files are only rewritten when something
changed.

Example:
  photocull write-xmp ./shoot`,
	Args: cobra.ExactArgs(1),
	RunE: runWriteXMP,
}

func init() {
	rootCmd.AddCommand(writeXMPCmd)
}

func runWriteXMP(cmd *cobra.Command, args []string) error {
	folder, err := absFolder(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := writeXMPStage(cmd.Context(), store, folder)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Sidecars written!")
	printSidecarStats(stats)
	return nil
}

func printSidecarStats(stats sidecar.Stats) {
	fmt.Printf("  Updated:        %d\n", stats.Updated)
	fmt.Printf("  Unchanged:      %d\n", stats.Unchanged)
	if stats.Corrupt > 0 {
		fmt.Printf("  Corrupt:        %d (skipped)\n", stats.Corrupt)
	}
	if stats.Failed > 0 {
		fmt.Printf("  Failed:         %d\n", stats.Failed)
	}
}

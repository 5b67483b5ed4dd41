package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reportPath string

var groupCmd = &cobra.Command{
	Use:   "group <folder>",
	Short: "Group similar shots among scored photos",
	Long: `Group near-duplicate shots among the photos scored by 'compute'.

Photos are ordered by path, embedded with the configured model and clustered
with a windowed density clustering: each photo is only compared with its
neighbours in path order and, when grouping.time_window_secs is set, with
photos taken within that many seconds. The best photos of each group are
marked by technical score.

Example:
  photocull group ./shoot
  photocull group ./shoot --report groups.json`,
	Args: cobra.ExactArgs(1),
	RunE: runGroup,
}

func init() {
	groupCmd.Flags().StringVar(&reportPath, "report", "", "Write the group report as JSON to this file")
	rootCmd.AddCommand(groupCmd)
}

func runGroup(cmd *cobra.Command, args []string) error {
	folder, err := absFolder(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Grouping %s (model %s)...\n", folder, cfg.Grouping.Model)
	records, result, err := groupStage(cmd.Context(), store, folder, reportPath)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No scored photos found.")
		fmt.Println("Run 'photocull compute " + args[0] + "' first.")
		return nil
	}

	grouped := len(records) - len(result.Noise)
	fmt.Println()
	fmt.Println("Grouping complete!")
	fmt.Printf("  Photos:         %d\n", len(records))
	fmt.Printf("  Groups:         %d\n", len(result.Groups))
	fmt.Printf("  Grouped photos: %d\n", grouped)
	fmt.Printf("  Singles:        %d\n", len(result.Noise))
	if reportPath != "" {
		fmt.Printf("  Report:         %s\n", reportPath)
	}
	fmt.Println()
	fmt.Println("Run 'photocull list' to see groups")
	return nil
}

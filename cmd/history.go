package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	Long: `Show the most recent compute, group and write-xmp runs, newest first.

Example:
  photocull history
  photocull history -n 50`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-19s  %-9s  %-7s  %-8s  %-6s  %-7s  %s\n",
		"Started", "Kind", "Photos", "Unusable", "Groups", "Changed", "Folder")
	fmt.Println(strings.Repeat("-", 90))
	for _, r := range runs {
		fmt.Printf("%-19s  %-9s  %-7d  %-8d  %-6d  %-7d  %s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Kind, r.TotalPhotos,
			r.Unusable, r.TotalGroups, r.Changed, shortenPath(r.Folder, 40))
	}
	return nil
}

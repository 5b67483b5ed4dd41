package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"photocull/internal/models"
)

var (
	listJSON    bool
	listVerbose bool
	listSummary bool
	listLimit   int
	listOffset  int
	listFolder  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups of similar shots",
	Long: `Display the groups found by 'group' with their photos.

Each group shows:
- Group ID
- Photos in the group with their technical scores and ranks
- The best photos of the group marked with ✓
- The other members marked with ✗

Example:
  photocull list                  # Show first 10 groups (default)
  photocull list -n 0             # Show all groups
  photocull list -s               # Summary view (compact)
  photocull list --offset 10      # Groups 11-20
  photocull list --folder ./shoot # Only groups under a folder`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Show detailed photo info")
	listCmd.Flags().BoolVarP(&listSummary, "summary", "s", false, "Show summary only (group counts and sizes)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Limit number of groups to display (0 = all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip first N groups (for pagination)")
	listCmd.Flags().StringVarP(&listFolder, "folder", "f", "", "Only list groups under this folder")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	folder := listFolder
	if folder != "" {
		if folder, err = filepath.Abs(folder); err != nil {
			return fmt.Errorf("failed to resolve %s: %w", listFolder, err)
		}
	}

	groups, err := store.GetGroups(folder)
	if err != nil {
		return fmt.Errorf("failed to get groups: %w", err)
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	}

	if len(groups) == 0 {
		fmt.Println("No groups found.")
		fmt.Println("Run 'photocull run <folder>' to score and group photos.")
		return nil
	}

	// Calculate totals
	totalPhotos := 0
	totalBest := 0
	for _, group := range groups {
		totalPhotos += group.Size
		totalBest += len(group.Best)
	}

	fmt.Printf("Found %d groups (%d photos, %d best)\n\n", len(groups), totalPhotos, totalBest)

	// Apply pagination
	totalGroups := len(groups)
	startIdx := listOffset
	if startIdx > len(groups) {
		startIdx = len(groups)
	}
	groups = groups[startIdx:]

	if listLimit > 0 && listLimit < len(groups) {
		groups = groups[:listLimit]
	}

	// Display groups
	if len(groups) == 0 {
		fmt.Printf("No groups in range (offset %d exceeds total %d)\n", listOffset, totalGroups)
	} else if listSummary {
		printSummaryTable(groups)
	} else {
		for _, group := range groups {
			printGroup(group, listVerbose)
		}
	}

	// Show pagination info
	endIdx := startIdx + len(groups)
	if len(groups) > 0 {
		fmt.Printf("Showing groups %d-%d of %d\n", startIdx+1, endIdx, totalGroups)
		if endIdx < totalGroups {
			nextOffset := endIdx
			limitArg := ""
			if listLimit > 0 {
				limitArg = fmt.Sprintf(" -n %d", listLimit)
			}
			fmt.Printf("Next page: photocull list%s --offset %d\n", limitArg, nextOffset)
		}
	}

	fmt.Println()
	fmt.Println("Run 'photocull write-xmp <folder>' to write ratings for Lightroom")
	fmt.Println("Run 'photocull cull --non-best --dry-run' to preview moving non-best shots")

	return nil
}

func printSummaryTable(groups []models.GroupInfo) {
	fmt.Printf("%-8s  %-8s  %-10s  %s\n", "Group", "Photos", "Top score", "Best photo")
	fmt.Println(strings.Repeat("-", 70))

	for _, group := range groups {
		bestName := "-"
		if len(group.Best) > 0 {
			bestName = filepath.Base(group.Best[0])
		}
		if len(bestName) > 40 {
			bestName = bestName[:37] + "..."
		}

		topScore := 0.0
		if len(group.Items) > 0 {
			topScore = group.Items[0].TechnicalScore
		}

		fmt.Printf("#%-7d  %-8d  %-10.1f  %s\n", group.ID, group.Size, topScore, bestName)
	}
	fmt.Println()
}

func printGroup(group models.GroupInfo, verbose bool) {
	fmt.Printf("Group #%d (%d photos)\n", group.ID, group.Size)
	fmt.Println(strings.Repeat("-", 60))

	for _, item := range group.Items {
		marker := "✗"
		if item.IsGroupBest {
			marker = "✓"
		}

		if verbose {
			fmt.Printf("  %s %s\n", marker, item.Path)
			fmt.Printf("      Rank: %d  Score: %.1f\n", item.RankInGroup, item.TechnicalScore)
		} else {
			fmt.Printf("  %s %-40s  #%-3d  Score: %5.1f\n",
				marker, shortenPath(item.Path, 40), item.RankInGroup, item.TechnicalScore)
		}
	}
	fmt.Println()
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	// Try to show filename and as much of the path as possible
	dir, file := filepath.Split(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4 // 4 for ".../"
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"photocull/internal/fileutil"
	"photocull/internal/models"
	"photocull/internal/sidecar"
)

var (
	dryRun      bool
	moveTo      string
	permanent   bool
	noConfirm   bool
	cullNonBest bool
	cullFolder  string
	groupIDs    []int
)

var cullCmd = &cobra.Command{
	Use:   "cull",
	Short: "Move rejected photos out of the shoot",
	Long: `Move unusable photos, and optionally the non-best members of each group,
out of the shoot together with their XMP sidecars.

The cull command will:
1. Select photos scored as unusable (blurry, badly exposed, low score)
2. With --non-best, also select group members not marked best
3. Move them to trash (default), to a folder, or delete permanently

Options:
  --dry-run     Preview what would be removed without actually removing
  --non-best    Also remove non-best members of similarity groups
  --permanent   Delete files permanently instead of moving to trash
  --move-to     Move photos to a specific folder
  --yes         Skip confirmation prompt
  --group       Only consider these group IDs, requires --folder (repeatable)

Example:
  photocull cull --folder ./shoot --dry-run                 # Preview only
  photocull cull --folder ./shoot                           # Move to trash (default)
  photocull cull --move-to=./rejected --non-best            # Move to specific folder
  photocull cull --folder ./shoot -g 1 -g 3 --non-best      # Only groups 1 and 3`,
	RunE: runCull,
}

func init() {
	cullCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview without removing")
	cullCmd.Flags().BoolVar(&cullNonBest, "non-best", false, "Also remove non-best group members")
	cullCmd.Flags().BoolVar(&permanent, "permanent", false, "Delete permanently instead of moving to trash")
	cullCmd.Flags().StringVar(&moveTo, "move-to", "", "Move photos to this folder")
	cullCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	cullCmd.Flags().StringVarP(&cullFolder, "folder", "f", "", "Only cull photos under this folder")
	cullCmd.Flags().IntSliceVarP(&groupIDs, "group", "g", nil, "Group IDs to cull (can be specified multiple times)")
	rootCmd.AddCommand(cullCmd)
}

// validateCullFlags rejects --group without --folder: group ids are
// assigned per folder, so the same id names different groups in
// different shoots.
func validateCullFlags(folder string, groups []int) error {
	if len(groups) > 0 && folder == "" {
		return errors.New("--group requires --folder: group ids are only unique within one folder")
	}
	return nil
}

// cullCandidates selects unusable records and, when nonBest is set,
// grouped records not marked best. A non-empty groups set restricts the
// selection to those group ids.
func cullCandidates(records []*models.PhotoRecord, nonBest bool, groups map[int]bool) []*models.PhotoRecord {
	var out []*models.PhotoRecord
	for _, rec := range records {
		if len(groups) > 0 && !groups[rec.GroupID] {
			continue
		}
		grouped := rec.GroupID != models.NoiseGroupID && rec.GroupSize > 1
		if rec.IsUnusable || (nonBest && grouped && !rec.IsGroupBest) {
			out = append(out, rec)
		}
	}
	return out
}

// withSidecar returns photo plus its sidecar when one exists
func withSidecar(photo string) []string {
	files := []string{photo}
	if _, err := os.Stat(sidecar.SidecarPath(photo)); err == nil {
		files = append(files, sidecar.SidecarPath(photo))
	}
	return files
}

func runCull(cmd *cobra.Command, args []string) error {
	if err := validateCullFlags(cullFolder, groupIDs); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	folder := cullFolder
	if folder != "" {
		if folder, err = filepath.Abs(folder); err != nil {
			return fmt.Errorf("failed to resolve %s: %w", cullFolder, err)
		}
	}

	records, err := store.LoadRecords(folder)
	if err != nil {
		return fmt.Errorf("failed to load photos: %w", err)
	}

	var groupSet map[int]bool
	if len(groupIDs) > 0 {
		groupSet = make(map[int]bool)
		for _, id := range groupIDs {
			groupSet[id] = true
		}
		fmt.Printf("Processing selected group(s): %v\n\n", groupIDs)
	}

	// Collect files to remove
	var toRemove []string
	var totalSize int64
	for _, rec := range cullCandidates(records, cullNonBest, groupSet) {
		// Verify file still exists
		if info, err := os.Stat(rec.Path); err == nil {
			toRemove = append(toRemove, rec.Path)
			totalSize += info.Size()
		}
	}

	if len(toRemove) == 0 {
		fmt.Println("No photos to cull.")
		return nil
	}

	// Determine action
	var action string
	if moveTo != "" {
		action = fmt.Sprintf("move to %s", moveTo)
	} else if permanent {
		action = "permanently delete"
	} else {
		action = "move to trash"
	}

	fmt.Printf("Will %s %d photos (%s)\n\n", action, len(toRemove), formatSize(totalSize))

	if dryRun {
		fmt.Println("Photos to be removed:")
		for _, path := range toRemove {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
		fmt.Println("(Dry run - no files were modified)")
		fmt.Println("Run without --dry-run to actually remove photos.")
		return nil
	}

	// Confirm unless --yes flag is set
	if !noConfirm {
		fmt.Printf("Are you sure you want to %s %d photos? [y/N]: ", action, len(toRemove))
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Process files
	var processed, failed int
	for _, path := range toRemove {
		files := withSidecar(path)

		var err error
		switch {
		case moveTo != "":
			err = fileutil.Move(moveTo, files...)
		case permanent:
			for _, f := range files {
				if rmErr := os.Remove(f); rmErr != nil && err == nil {
					err = rmErr
				}
			}
		default:
			err = fileutil.MoveToTrash(files...)
		}

		if err != nil {
			log.WithField("path", path).WithError(err).Error("failed to cull photo")
			failed++
			continue
		}
		processed++
		if err := store.DeleteRecord(path); err != nil {
			log.WithField("path", path).WithError(err).Warn("failed to drop record")
		}
	}

	fmt.Println()
	if moveTo != "" {
		fmt.Printf("Moved %d photos to %s\n", processed, moveTo)
	} else if permanent {
		fmt.Printf("Permanently deleted %d photos\n", processed)
	} else {
		fmt.Printf("Moved %d photos to trash\n", processed)
	}
	if failed > 0 {
		fmt.Printf("Failed: %d photos\n", failed)
	}

	return nil
}

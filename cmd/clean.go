package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mediadupfinder/internal/fileutil"
	"mediadupfinder/internal/library"
	"mediadupfinder/internal/models"
)

var (
	dryRun    bool
	moveTo    string
	permanent bool
	noConfirm bool
	groupIDs  []string
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove or move selected duplicates",
	Long: `Remove the duplicates selected for deletion, keeping the oldest asset of
each group unless you changed the selection with toggle.

The clean command will:
1. Collect the selected members of every group
2. Move them to trash (default), delete them permanently or move them to a folder
3. Drop removed assets from their groups and the database

Options:
  --dry-run     Preview what would be removed without actually removing
  --permanent   Delete files permanently instead of moving to trash
  --move-to     Move duplicates to a specific folder
  --yes         Skip confirmation prompt
  --group       Group IDs or ID prefixes to clean (can be used multiple times)

Example:
  mediadupfinder clean                        # Move to trash (default)
  mediadupfinder clean -c video --permanent   # Delete videos permanently
  mediadupfinder clean --move-to=./backup     # Move to specific folder
  mediadupfinder clean --dry-run              # Preview only
  mediadupfinder clean -g 3f2a -g 9b01        # Clean only two groups`,
	RunE: runClean,
}

func init() {
	addClassFlag(cleanCmd, string(models.ClassPhoto))
	cleanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview without removing")
	cleanCmd.Flags().BoolVar(&permanent, "permanent", false, "Delete permanently instead of moving to trash")
	cleanCmd.Flags().StringVar(&moveTo, "move-to", "", "Move duplicates to this folder")
	cleanCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	cleanCmd.Flags().StringSliceVarP(&groupIDs, "group", "g", nil, "Group IDs to clean (can be specified multiple times)")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	classes, err := selectedClasses(cmd)
	if err != nil {
		return err
	}

	var remover func(string) error
	switch {
	case moveTo != "":
		if !dryRun {
			if err := os.MkdirAll(moveTo, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", moveTo, err)
			}
		}
		remover = func(path string) error {
			_, err := fileutil.MoveFile(path, moveTo)
			return err
		}
	case permanent:
		remover = os.Remove
	}

	a, err := openApp(withRemover(remover))
	if err != nil {
		return err
	}
	defer a.Close()

	for _, class := range classes {
		if !class.UsesSimilarity() {
			continue
		}
		if err := cleanClass(cmd, a, class); err != nil {
			return err
		}
	}
	return nil
}

func cleanClass(cmd *cobra.Command, a *app, class models.AssetClass) error {
	groups := filterGroups(a.engine.Status(class).Groups, groupIDs)
	if len(groups) == 0 {
		if len(groupIDs) > 0 {
			fmt.Printf("No matching %s groups found for IDs: %v\n", class, groupIDs)
			fmt.Println("Run 'mediadupfinder list' to see available group IDs.")
		} else {
			fmt.Printf("No %s duplicate groups found.\n", class)
		}
		return nil
	}

	// Collect files to remove
	var toRemove []models.AssetRef
	var totalSize int64
	for _, group := range groups {
		for _, asset := range group.Selected() {
			toRemove = append(toRemove, asset)
			totalSize += asset.FileSize
		}
	}

	if len(toRemove) == 0 {
		fmt.Printf("No %s assets selected for removal.\n", class)
		return nil
	}

	var action string
	if moveTo != "" {
		action = fmt.Sprintf("move to %s", moveTo)
	} else if permanent {
		action = "permanently delete"
	} else {
		action = "move to trash"
	}

	fmt.Printf("Will %s %d %s files (%s)\n\n", action, len(toRemove), class, formatSize(totalSize))

	if dryRun {
		fmt.Println("Files to be removed:")
		for _, asset := range toRemove {
			fmt.Printf("  %s\n", assetLabel(asset))
		}
		fmt.Println()
		fmt.Println("(Dry run - no files were modified)")
		fmt.Println("Run without --dry-run to actually remove files.")
		return nil
	}

	// Confirm unless --yes flag is set
	if !noConfirm {
		fmt.Printf("Are you sure you want to %s %d files? [y/N]: ", action, len(toRemove))
		reader := bufio.NewReader(cmd.InOrStdin())
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted, err := a.engine.DeleteAssets(cmd.Context(), class, toRemove)
	var freed int64
	for _, d := range deleted {
		freed += d.FileSize
	}

	var derr *library.DeleteError
	if errors.As(err, &derr) {
		for _, f := range derr.Failed {
			fmt.Fprintf(os.Stderr, "Failed to process %s\n", assetLabel(f))
		}
	} else if err != nil {
		return err
	}

	fmt.Println()
	if moveTo != "" {
		fmt.Printf("Moved %d files to %s\n", len(deleted), moveTo)
	} else if permanent {
		fmt.Printf("Permanently deleted %d files\n", len(deleted))
	} else {
		fmt.Printf("Moved %d files to trash\n", len(deleted))
	}
	if derr != nil {
		fmt.Printf("Failed: %d files\n", len(derr.Failed))
	}
	fmt.Printf("Space reclaimed: %s\n", formatSize(freed))

	return nil
}

// filterGroups keeps the groups whose ID starts with one of prefixes; no
// prefixes keeps every group
func filterGroups(groups []models.DuplicateGroup, prefixes []string) []models.DuplicateGroup {
	if len(prefixes) == 0 {
		return groups
	}
	var filtered []models.DuplicateGroup
	for _, g := range groups {
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(g.ID, p) {
				filtered = append(filtered, g)
				break
			}
		}
	}
	return filtered
}

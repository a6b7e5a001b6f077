package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mediadupfinder/internal/models"
)

var (
	listJSON    bool
	listVerbose bool
	listSummary bool
	listLimit   int
	listOffset  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List duplicate groups",
	Long: `Display the duplicate groups of the last scan.

Each group shows:
- Group ID (the first 8 characters are enough for other commands)
- The kept asset, the oldest of the group, marked with ✓
- Assets selected for deletion marked with ✗
- Assets you deselected marked with ·

Example:
  mediadupfinder list              # Show first 10 photo groups (default)
  mediadupfinder list -c video     # Video groups
  mediadupfinder list -n 0         # Show all groups
  mediadupfinder list -s           # Summary view (compact)
  mediadupfinder list --offset 10  # Groups 11-20`,
	RunE: runList,
}

func init() {
	addClassFlag(listCmd, string(models.ClassPhoto))
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Show detailed asset info")
	listCmd.Flags().BoolVarP(&listSummary, "summary", "s", false, "Show summary only (group counts and sizes)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Limit number of groups to display (0 = all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip first N groups (for pagination)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	classes, err := selectedClasses(cmd)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if listJSON {
		out := make(map[models.AssetClass][]models.DuplicateGroup, len(classes))
		for _, class := range classes {
			out[class] = a.engine.Status(class).Groups
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, class := range classes {
		if !class.UsesSimilarity() {
			fmt.Printf("%s assets are grouped by month; run 'mediadupfinder months -c %s'\n\n", class, class)
			continue
		}
		listClass(class, a.engine.Status(class).Groups)
	}
	return nil
}

func listClass(class models.AssetClass, groups []models.DuplicateGroup) {
	if len(groups) == 0 {
		fmt.Printf("No %s duplicate groups found.\n", class)
		fmt.Printf("Run 'mediadupfinder scan -c %s <folder>' to scan for duplicates.\n\n", class)
		return
	}

	// Calculate totals
	totalDuplicates := 0
	for _, group := range groups {
		totalDuplicates += len(group.Members) - 1
	}

	fmt.Printf("Found %d %s duplicate groups (%d duplicates, %s selected for removal)\n\n",
		len(groups), class, totalDuplicates, formatSize(models.ReclaimableBytes(groups)))

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

	if len(groups) == 0 {
		fmt.Printf("No groups in range (offset %d exceeds total %d)\n", listOffset, totalGroups)
	} else if listSummary {
		printSummaryTable(groups)
	} else {
		for _, group := range groups {
			printGroup(group, listVerbose)
		}
	}

	endIdx := startIdx + len(groups)
	if len(groups) > 0 {
		fmt.Printf("Showing groups %d-%d of %d\n", startIdx+1, endIdx, totalGroups)
		if endIdx < totalGroups {
			limitArg := ""
			if listLimit > 0 {
				limitArg = fmt.Sprintf(" -n %d", listLimit)
			}
			fmt.Printf("Next page: mediadupfinder list -c %s%s --offset %d\n", class, limitArg, endIdx)
		}
	}

	fmt.Println()
	fmt.Printf("Run 'mediadupfinder toggle -c %s <group> <asset>' to change what is kept\n", class)
	fmt.Printf("Run 'mediadupfinder clean -c %s' to remove duplicates\n", class)
	fmt.Println()
}

func printSummaryTable(groups []models.DuplicateGroup) {
	fmt.Printf("%-10s  %-8s  %-12s  %s\n", "Group", "Assets", "Reclaimable", "Keep (oldest)")
	fmt.Println(strings.Repeat("-", 70))

	for _, group := range groups {
		keepName := filepath.Base(assetLabel(group.Anchor()))
		if len(keepName) > 35 {
			keepName = keepName[:32] + "..."
		}

		fmt.Printf("%-10s  %-8d  %-12s  %s\n",
			shortID(group.ID), len(group.Members), formatSize(models.ReclaimableBytes([]models.DuplicateGroup{group})), keepName)
	}
	fmt.Println()
}

func printGroup(group models.DuplicateGroup, verbose bool) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("Group %s (%d assets)\n", shortID(group.ID), len(group.Members))
	fmt.Println(strings.Repeat("-", 60))

	for i, m := range group.Members {
		marker := gray("·")
		switch {
		case i == 0:
			marker = green("✓")
		case m.Selected:
			marker = red("✗")
		}

		label := assetLabel(m.Asset)
		date := m.Asset.CreationDate.Format("2006-01-02 15:04")

		if verbose {
			fmt.Printf("  %s %s\n", marker, label)
			fmt.Printf("      ID: %s\n", m.Asset.ID)
			fmt.Printf("      Created: %s  Size: %s", date, formatSize(m.Asset.FileSize))
			if m.Asset.DurationSeconds > 0 {
				fmt.Printf("  Duration: %.1fs", m.Asset.DurationSeconds)
			}
			fmt.Println()
		} else {
			fmt.Printf("  %s %-40s  %s  %8s\n", marker, shortenPath(label, 40), date, formatSize(m.Asset.FileSize))
		}
	}
	fmt.Println()
}

func assetLabel(a models.AssetRef) string {
	if a.Path != "" {
		return a.Path
	}
	return a.ID
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
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

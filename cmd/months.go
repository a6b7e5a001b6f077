package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mediadupfinder/internal/models"
)

var (
	monthsJSON    bool
	monthsVerbose bool
)

var monthsCmd = &cobra.Command{
	Use:   "months",
	Short: "Show screenshots or screen recordings grouped by month",
	Long: `Display the month buckets of the last screenshot or screen-recording scan,
newest month first.

Example:
  mediadupfinder months                        # Screenshots
  mediadupfinder months -c screen-recording -v # Recordings with file names`,
	RunE: runMonths,
}

func init() {
	addClassFlag(monthsCmd, string(models.ClassScreenshot))
	monthsCmd.Flags().BoolVar(&monthsJSON, "json", false, "Output in JSON format")
	monthsCmd.Flags().BoolVarP(&monthsVerbose, "verbose", "v", false, "List every asset")
	rootCmd.AddCommand(monthsCmd)
}

func runMonths(cmd *cobra.Command, args []string) error {
	classes, err := selectedClasses(cmd)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	for _, class := range classes {
		if class.UsesSimilarity() {
			continue
		}
		buckets := a.engine.MonthBuckets(class)

		if monthsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(buckets); err != nil {
				return err
			}
			continue
		}

		if len(buckets) == 0 {
			fmt.Printf("No %s assets found.\n", class)
			fmt.Printf("Run 'mediadupfinder scan -c %s <folder>' first.\n\n", class)
			continue
		}

		for _, b := range buckets {
			var size int64
			for _, m := range b.Members {
				size += m.FileSize
			}
			fmt.Printf("%-20s %5d items  %10s\n", cyan(b.Title), len(b.Members), formatSize(size))
			if monthsVerbose {
				for _, m := range b.Members {
					fmt.Printf("    %s  %s\n", m.CreationDate.Format("2006-01-02"), shortenPath(assetLabel(m), 60))
				}
			}
		}
		fmt.Println()
	}
	return nil
}

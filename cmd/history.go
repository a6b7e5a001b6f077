package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scans",
	RunE:  runHistory,
}

func init() {
	addClassFlag(historyCmd, "all")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of scans per class")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	classes, err := selectedClasses(cmd)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Printf("%-17s  %-20s  %8s  %8s  %10s\n", "Class", "Scanned", "Assets", "Groups", "Duplicates")
	fmt.Println(strings.Repeat("-", 72))
	for _, class := range classes {
		records, err := a.store.ScanHistory(class, historyLimit)
		if err != nil {
			return err
		}
		for _, r := range records {
			line := fmt.Sprintf("%-17s  %-20s  %8d  %8d  %10d",
				r.Class, r.ScannedAt.Local().Format("2006-01-02 15:04:05"), r.TotalAssets, r.TotalGroups, r.TotalDuplicates)
			if r.Cancelled {
				line += "  " + yellow("cancelled")
			}
			fmt.Println(line)
		}
	}
	return nil
}

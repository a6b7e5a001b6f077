package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"mediadupfinder/internal/models"
)

// pollInterval is how often the progress bar reads the engine status
const pollInterval = 100 * time.Millisecond

var scanCmd = &cobra.Command{
	Use:   "scan [folder...]",
	Short: "Scan folders for duplicate media",
	Long: `Scan folders recursively and detect duplicates of one or more asset classes.

The scan will:
1. List every supported file of the class (photos or videos)
2. Compute a coarse perceptual hash per asset in parallel batches
3. Confirm candidates sharing a hash by content, pixels and embeddings
4. Store groups in the database for list, clean and serve

Screenshots and screen recordings are grouped by month instead.
Folders default to the roots in the config file. Ctrl+C stops the scan and
keeps the groups found so far.

Example:
  mediadupfinder scan ./photos
  mediadupfinder scan -c video -c screen-recording ~/Movies
  mediadupfinder scan -c all`,
	RunE: runScan,
}

func init() {
	addClassFlag(scanCmd, string(models.ClassPhoto))
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	classes, err := selectedClasses(cmd)
	if err != nil {
		return err
	}

	roots, err := resolveFolders(args)
	if err != nil {
		return err
	}

	a, err := openApp(withRoots(roots))
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.cfg.Roots) == 0 {
		return errors.New("no folders to scan: pass one or set roots in the config file")
	}
	for _, r := range a.cfg.Roots {
		fmt.Printf("Scanning: %s\n", r)
	}
	fmt.Println()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, class := range classes {
		if err := scanClass(ctx, a, class); err != nil {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil
}

func resolveFolders(args []string) ([]string, error) {
	var roots []string
	for _, folder := range args {
		abs, err := filepath.Abs(folder)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("folder not found: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("not a directory: %s", abs)
		}
		roots = append(roots, abs)
	}
	return roots, nil
}

// scanClass runs one class to completion, drawing a progress bar from
// status polls. Cancelling ctx cancels the scan.
func scanClass(ctx context.Context, a *app, class models.AssetClass) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("%s\n", cyan(fmt.Sprintf("== %s ==", class)))

	if err := a.engine.StartScan(ctx, class); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	var bar *progressbar.ProgressBar
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	st := a.engine.Status(class)
	for st.IsScanning {
		if bar == nil && st.Total > 0 {
			bar = progressbar.Default(int64(st.Total), "Hashing "+string(class))
		}
		if bar != nil {
			bar.Set(st.Processed)
		}

		select {
		case <-ctx.Done():
			a.engine.CancelScan(class)
			a.engine.Wait(class)
		case <-ticker.C:
		}
		st = a.engine.Status(class)
	}
	if bar != nil {
		if st.State == models.StateComplete {
			bar.Finish()
		}
		fmt.Println()
	}

	printScanSummary(a, class, st)
	return nil
}

func printScanSummary(a *app, class models.AssetClass, st models.Status) {
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	if st.State == models.StateCancelled {
		fmt.Println(yellow(fmt.Sprintf("Scan cancelled after %d of %d assets; partial results kept.", st.Processed, st.Total)))
	}

	if !class.UsesSimilarity() {
		buckets := a.engine.MonthBuckets(class)
		var items int
		for _, b := range buckets {
			items += len(b.Members)
		}
		fmt.Printf("Total assets: %d\n", st.Total)
		fmt.Printf("Months:       %d\n", len(buckets))
		if items > 0 {
			fmt.Println()
			fmt.Printf("Run 'mediadupfinder months -c %s' to browse them\n", class)
		}
		fmt.Println()
		return
	}

	var duplicates int
	for _, g := range st.Groups {
		duplicates += len(g.Members) - 1
	}

	fmt.Printf("Total assets:     %d\n", st.Total)
	fmt.Printf("Duplicate groups: %d\n", len(st.Groups))
	fmt.Printf("Duplicates found: %d\n", duplicates)
	if len(st.Groups) > 0 {
		fmt.Printf("Reclaimable:      %s\n", green(formatSize(models.ReclaimableBytes(st.Groups))))
		fmt.Println()
		fmt.Printf("Run 'mediadupfinder list -c %s' to see duplicate groups\n", class)
		fmt.Printf("Run 'mediadupfinder clean -c %s --dry-run' to preview deletions\n", class)
	}
	fmt.Println()
}

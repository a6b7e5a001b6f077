package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mediadupfinder/internal/config"
	"mediadupfinder/internal/embed"
	"mediadupfinder/internal/engine"
	"mediadupfinder/internal/fileutil"
	"mediadupfinder/internal/library"
	"mediadupfinder/internal/logging"
	"mediadupfinder/internal/models"
	"mediadupfinder/internal/storage"
)

var (
	configPath string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mediadupfinder",
	Short: "Find and manage duplicate photos and videos",
	Long: `mediadupfinder finds duplicate photos and videos in your media folders.

Assets are bucketed by a perceptual hash, then confirmed by exact content,
pixel difference and optional feature embeddings. Screenshots and screen
recordings are grouped by month instead.

Example usage:
  mediadupfinder scan ~/Pictures                  # Scan photos for duplicates
  mediadupfinder scan -c video ~/Movies           # Scan videos
  mediadupfinder list                             # List duplicate groups
  mediadupfinder months -c screenshot             # Screenshots by month
  mediadupfinder clean --dry-run                  # Preview what would be deleted
  mediadupfinder clean                            # Move selected duplicates to trash`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

// addClassFlag registers --class on commands that work per asset class
func addClassFlag(cmd *cobra.Command, def string) {
	cmd.Flags().StringSliceP("class", "c", []string{def},
		"Asset class: photo, video, screenshot, screen-recording, or all")
}

func selectedClasses(cmd *cobra.Command) ([]models.AssetClass, error) {
	classNames, err := cmd.Flags().GetStringSlice("class")
	if err != nil {
		return nil, err
	}
	var classes []models.AssetClass
	seen := make(map[models.AssetClass]bool)
	for _, name := range classNames {
		if name == "all" {
			return models.AllClasses, nil
		}
		class, err := models.ParseAssetClass(name)
		if err != nil {
			return nil, err
		}
		if !seen[class] {
			seen[class] = true
			classes = append(classes, class)
		}
	}
	return classes, nil
}

// app bundles what every command needs: configuration, logger, result
// store, library and engine
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  *storage.Storage
	lib    *library.Library
	engine *engine.Engine
}

type appOption func(*appOptions)

type appOptions struct {
	roots   []string
	remover func(string) error
	json    bool
}

func withRoots(roots []string) appOption {
	return func(o *appOptions) { o.roots = roots }
}

func withRemover(fn func(string) error) appOption {
	return func(o *appOptions) { o.remover = fn }
}

func withJSONLogs() appOption {
	return func(o *appOptions) { o.json = true }
}

// openApp loads configuration, opens the database and restores the last
// results into the engine
func openApp(opts ...appOption) (*app, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load(configPath, !rootCmd.PersistentFlags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if len(o.roots) > 0 {
		cfg.Roots = o.roots
	}

	log := logging.New(cfg.LogLevel, os.Stderr)
	if o.json {
		log = logging.NewJSON(cfg.LogLevel, os.Stderr)
	}

	store, err := storage.NewStorage(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	remover := o.remover
	if remover == nil && cfg.Trash != "" {
		remover = fileutil.Trash{Dir: cfg.Trash}.Move
	}

	lib := library.New(cfg.Roots,
		library.WithFFmpeg(cfg.FFmpeg),
		library.WithRemover(remover),
		library.WithLogger(log.With().Str("component", "library").Logger()),
	)

	eng := engine.New(lib,
		engine.WithConfig(cfg.Engine),
		engine.WithEmbedder(embed.New(cfg.Embed, log.With().Str("component", "embed").Logger())),
		engine.WithStore(store),
		engine.WithLogger(log.With().Str("component", "engine").Logger()),
	)
	if err := eng.Restore(); err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: store, lib: lib, engine: eng}, nil
}

func (a *app) Close() error {
	a.engine.CancelAll()
	return a.store.Close()
}

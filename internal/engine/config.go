package engine

import (
	"time"

	"mediadupfinder/internal/match"
	"mediadupfinder/internal/scan"
)

// ClassConfig tunes the batch scheduler of one similarity pipeline
type ClassConfig struct {
	BatchSize            int `yaml:"batch_size"`
	MaxConcurrentBatches int `yaml:"max_concurrent_batches"`
	// RefineEvery is the number of batches per batch set; groups are
	// refined and republished after every set. Zero means MaxConcurrentBatches.
	RefineEvery       int           `yaml:"refine_every"`
	QueueDepth        int           `yaml:"queue_depth"`
	BackpressureDelay time.Duration `yaml:"backpressure_delay"`
	// MemoryCeiling in bytes; negative disables the check
	MemoryCeiling int64 `yaml:"memory_ceiling"`
}

// Config configures every pipeline of the engine
type Config struct {
	Photo      ClassConfig      `yaml:"photo"`
	Video      ClassConfig      `yaml:"video"`
	Thresholds match.Thresholds `yaml:"thresholds"`
}

// DefaultMemoryCeiling is the resident memory limit of the video path
const DefaultMemoryCeiling int64 = 1536 << 20

// DefaultConfig returns the engine defaults: photos in batches of 200, two
// at a time; videos in batches of 10, one at a time, under a 1.5 GiB ceiling
func DefaultConfig() Config {
	return Config{
		Photo: ClassConfig{
			BatchSize:            scan.DefaultBatchSize,
			MaxConcurrentBatches: scan.DefaultMaxConcurrent,
			QueueDepth:           scan.DefaultQueueDepth,
			BackpressureDelay:    scan.DefaultBackpressureDelay,
			MemoryCeiling:        scan.NoMemoryCeiling,
		},
		Video: ClassConfig{
			BatchSize:            10,
			MaxConcurrentBatches: 1,
			QueueDepth:           scan.DefaultQueueDepth,
			BackpressureDelay:    scan.DefaultBackpressureDelay,
			MemoryCeiling:        DefaultMemoryCeiling,
		},
		Thresholds: match.Thresholds{
			PixelDiff: match.DefaultPixelDiffThreshold,
			Embedding: match.DefaultEmbeddingThreshold,
		},
	}
}

func (c ClassConfig) schedulerOptions() []scan.Option {
	return []scan.Option{
		scan.WithBatchSize(c.BatchSize),
		scan.WithMaxConcurrentBatches(c.MaxConcurrentBatches),
		scan.WithBatchSetSize(c.RefineEvery),
		scan.WithBackpressure(c.QueueDepth, c.BackpressureDelay),
		scan.WithMemoryCeiling(c.MemoryCeiling),
	}
}

package scan

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mediadupfinder/internal/models"
)

// ErrMemoryPressure marks a batch abandoned because resident memory
// exceeded the configured ceiling
var ErrMemoryPressure = errors.New("memory pressure")

const (
	DefaultBatchSize         = 200
	DefaultMaxConcurrent     = 2
	DefaultQueueDepth        = 4
	DefaultBackpressureDelay = 10 * time.Millisecond

	// NoMemoryCeiling disables the resident memory check
	NoMemoryCeiling int64 = -1
)

// ItemFunc processes one asset. Errors are logged and counted; they never
// stop the batch.
type ItemFunc func(ctx context.Context, ref models.AssetRef) error

// MemoryProbe reports the current resident memory in bytes
type MemoryProbe func() uint64

// Scheduler partitions assets into contiguous batches and runs them on a
// bounded pool of workers
type Scheduler struct {
	batchSize     int
	maxConcurrent int
	setSize       int
	queueDepth    int
	backoff       time.Duration
	memCeiling    int64
	probe         MemoryProbe
	progressFn    func(processed, total int, current models.AssetRef)
	setDoneFn     func(ctx context.Context, set int)
	log           zerolog.Logger
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithBatchSize sets the number of assets per batch
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMaxConcurrentBatches caps the number of batches in flight
func WithMaxConcurrentBatches(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithBatchSetSize sets how many batches make up one batch set; the set
// is joined before the set-done callback runs
func WithBatchSetSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.setSize = n
		}
	}
}

// WithBackpressure makes the submitter sleep for delay while more than
// depth batches are queued
func WithBackpressure(depth int, delay time.Duration) Option {
	return func(s *Scheduler) {
		if depth > 0 {
			s.queueDepth = depth
		}
		if delay > 0 {
			s.backoff = delay
		}
	}
}

// WithMemoryCeiling aborts the remainder of a batch once the probe reports
// more than ceiling bytes. A negative ceiling disables the check.
func WithMemoryCeiling(ceiling int64) Option {
	return func(s *Scheduler) {
		s.memCeiling = ceiling
	}
}

// WithMemoryProbe replaces the runtime-based memory probe
func WithMemoryProbe(p MemoryProbe) Option {
	return func(s *Scheduler) {
		if p != nil {
			s.probe = p
		}
	}
}

// WithProgress sets a progress callback, invoked once per handled asset
func WithProgress(fn func(processed, total int, current models.AssetRef)) Option {
	return func(s *Scheduler) {
		s.progressFn = fn
	}
}

// WithBatchSetDone sets a callback run after every batch set is joined
func WithBatchSetDone(fn func(ctx context.Context, set int)) Option {
	return func(s *Scheduler) {
		s.setDoneFn = fn
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// NewScheduler creates a new Scheduler
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		batchSize:     DefaultBatchSize,
		maxConcurrent: DefaultMaxConcurrent,
		queueDepth:    DefaultQueueDepth,
		backoff:       DefaultBackpressureDelay,
		memCeiling:    NoMemoryCeiling,
		probe:         ResidentMemory,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.setSize == 0 {
		s.setSize = s.maxConcurrent
	}
	return s
}

// Batch is a contiguous slice of the asset list
type Batch struct {
	Index int
	Items []models.AssetRef
}

// Partition splits assets into contiguous batches of at most size items
func Partition(assets []models.AssetRef, size int) []Batch {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches []Batch
	for start := 0; start < len(assets); start += size {
		end := start + size
		if end > len(assets) {
			end = len(assets)
		}
		batches = append(batches, Batch{Index: len(batches), Items: assets[start:end]})
	}
	return batches
}

// Report summarizes one Run
type Report struct {
	Total        int
	Processed    int // handled assets, including failed and deferred ones
	Failed       int
	Deferred     []models.AssetRef // skipped under memory pressure, retried on the next run
	MemoryAborts int
	BatchesRun   int
	Cancelled    bool
}

// Run processes every asset with fn. Cancellation through ctx is
// cooperative: the current item finishes, the remaining items of the batch
// are abandoned and work already done is kept.
func (s *Scheduler) Run(ctx context.Context, assets []models.AssetRef, fn ItemFunc) Report {
	batches := Partition(assets, s.batchSize)
	rep := &Report{Total: len(assets)}
	var processed atomic.Int64
	var mu sync.Mutex

	for start, set := 0, 0; start < len(batches); start, set = start+s.setSize, set+1 {
		if ctx.Err() != nil {
			break
		}
		end := start + s.setSize
		if end > len(batches) {
			end = len(batches)
		}

		s.runSet(ctx, batches[start:end], fn, &processed, rep, &mu)

		if s.setDoneFn != nil {
			s.setDoneFn(ctx, set)
		}
	}

	rep.Processed = int(processed.Load())
	rep.Cancelled = ctx.Err() != nil
	return *rep
}

func (s *Scheduler) runSet(ctx context.Context, set []Batch, fn ItemFunc, processed *atomic.Int64, rep *Report, mu *sync.Mutex) {
	queue := make(chan Batch, len(set))

	workers := s.maxConcurrent
	if workers > len(set) {
		workers = len(set)
	}

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for b := range queue {
				res := s.runBatch(ctx, b, fn, processed, rep.Total)
				mu.Lock()
				rep.BatchesRun++
				rep.Failed += res.failed
				if res.memoryAbort {
					rep.MemoryAborts++
					rep.Deferred = append(rep.Deferred, res.deferred...)
				}
				mu.Unlock()
			}
			return nil
		})
	}

	for _, b := range set {
		for len(queue) >= s.queueDepth && ctx.Err() == nil {
			time.Sleep(s.backoff)
		}
		if ctx.Err() != nil {
			break
		}
		queue <- b
	}
	close(queue)

	_ = g.Wait()
}

type batchResult struct {
	failed      int
	memoryAbort bool
	deferred    []models.AssetRef
}

func (s *Scheduler) runBatch(ctx context.Context, b Batch, fn ItemFunc, processed *atomic.Int64, total int) batchResult {
	var res batchResult
	for i, ref := range b.Items {
		if ctx.Err() != nil {
			s.log.Debug().Int("batch", b.Index).Int("abandoned", len(b.Items)-i).Msg("batch cancelled")
			return res
		}

		if s.overCeiling() {
			res.memoryAbort = true
			res.deferred = append(res.deferred, b.Items[i:]...)
			s.log.Warn().Err(ErrMemoryPressure).
				Int("batch", b.Index).
				Int("deferred", len(b.Items)-i).
				Int64("ceiling", s.memCeiling).
				Msg("skipping remainder of batch")
			for _, d := range b.Items[i:] {
				s.report(processed.Add(1), total, d)
			}
			return res
		}

		if err := fn(ctx, ref); err != nil {
			res.failed++
			s.log.Debug().Err(err).Str("asset", ref.ID).Msg("asset skipped")
		}
		s.report(processed.Add(1), total, ref)
	}
	return res
}

func (s *Scheduler) report(n int64, total int, ref models.AssetRef) {
	if s.progressFn != nil {
		s.progressFn(int(n), total, ref)
	}
}

func (s *Scheduler) overCeiling() bool {
	if s.memCeiling < 0 {
		return false
	}
	return s.probe() > uint64(s.memCeiling)
}

// ResidentMemory estimates resident memory from the runtime's view of
// memory obtained from the OS minus what was released back
func ResidentMemory() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys - m.HeapReleased
}

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mediadupfinder/internal/group"
	"mediadupfinder/internal/hash"
	"mediadupfinder/internal/index"
	"mediadupfinder/internal/match"
	"mediadupfinder/internal/models"
	"mediadupfinder/internal/scan"
	"mediadupfinder/internal/session"
)

// finalRefineTimeout bounds the refinement pass run after a cancel
const finalRefineTimeout = 30 * time.Second

// Pipeline scans one asset class. Photo and video pipelines run the
// similarity path (scheduler, index, grouper); screenshot and screen
// recording pipelines partition by month.
type Pipeline struct {
	class   models.AssetClass
	lib     Library
	cfg     ClassConfig
	store   ResultStore
	log     zerolog.Logger
	session *session.Session
	index   *index.Index
	grouper *group.Grouper
	hasher  *hash.Hasher

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	deferred map[string]bool // skipped under memory pressure, scanned first next run
}

func newPipeline(class models.AssetClass, e *Engine) *Pipeline {
	log := e.log.With().Str("class", string(class)).Logger()
	cfg := e.cfg.Photo
	if class.Kind() == models.KindVideo {
		cfg = e.cfg.Video
	}

	p := &Pipeline{
		class:    class,
		lib:      e.lib,
		cfg:      cfg,
		store:    e.store,
		log:      log,
		session:  session.New(class, session.WithLogger(log)),
		index:    index.New(),
		hasher:   hash.NewHasher(),
		deferred: make(map[string]bool),
	}
	if class.UsesSimilarity() {
		p.grouper = group.NewGrouper(e.lib, match.NewClassifier(e.cfg.Thresholds),
			group.WithEmbedder(e.embedder),
			group.WithLogger(log),
		)
	}
	return p
}

// Start lists the class's assets and runs the scan in the background. The
// scan outlives ctx; only Cancel stops it. The pipeline lock is not held
// while listing, so Cancel and Wait stay responsive during a slow walk.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.running() {
		return nil
	}

	all, err := p.lib.ListAssets(ctx, p.class.Kind())
	if err != nil {
		return fmt.Errorf("failed to list %s assets: %w", p.class, err)
	}
	assets := make([]models.AssetRef, 0, len(all))
	for _, a := range all {
		if p.class.Contains(a) {
			assets = append(assets, a)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// another Start may have launched a run while we were listing
	if p.runningLocked() {
		return nil
	}
	assets = p.deferredFirst(assets)

	if !p.session.Start(len(assets)) {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		defer cancel()
		p.run(runCtx, assets)
	}(p.done)
	return nil
}

func (p *Pipeline) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningLocked()
}

func (p *Pipeline) runningLocked() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// deferredFirst moves assets deferred by the previous run to the front
func (p *Pipeline) deferredFirst(assets []models.AssetRef) []models.AssetRef {
	if len(p.deferred) == 0 {
		return assets
	}
	out := make([]models.AssetRef, 0, len(assets))
	var rest []models.AssetRef
	for _, a := range assets {
		if p.deferred[a.ID] {
			out = append(out, a)
		} else {
			rest = append(rest, a)
		}
	}
	p.log.Info().Int("deferred", len(out)).Msg("retrying assets deferred by the last run")
	return append(out, rest...)
}

// Cancel requests a cooperative stop of the running scan
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the running scan, if any, has finished
func (p *Pipeline) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Pipeline) run(ctx context.Context, assets []models.AssetRef) {
	if len(assets) > 0 {
		if p.class.UsesSimilarity() {
			p.runSimilarity(ctx, assets)
		} else {
			p.runMonths(assets)
		}
	}

	cancelled := ctx.Err() != nil
	p.session.Finish(cancelled)
	p.persist()
	p.record(len(assets), cancelled)
}

func (p *Pipeline) runSimilarity(ctx context.Context, assets []models.AssetRef) {
	p.index.Reset()
	p.grouper.Reset()

	opts := append(p.cfg.schedulerOptions(),
		scan.WithLogger(p.log),
		scan.WithProgress(func(processed, total int, _ models.AssetRef) {
			p.session.Advance(processed)
		}),
		scan.WithBatchSetDone(func(ctx context.Context, set int) {
			p.refine(ctx)
		}),
	)
	rep := scan.NewScheduler(opts...).Run(ctx, assets, p.extract)

	if rep.Cancelled {
		// the interrupted batch set was extracted but never refined
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalRefineTimeout)
		p.refine(fctx)
		cancel()
	}

	p.mu.Lock()
	p.deferred = make(map[string]bool, len(rep.Deferred))
	for _, d := range rep.Deferred {
		p.deferred[d.ID] = true
	}
	p.mu.Unlock()

	p.log.Info().
		Int("total", rep.Total).
		Int("processed", rep.Processed).
		Int("failed", rep.Failed).
		Int("deferred", len(rep.Deferred)).
		Int("memory_aborts", rep.MemoryAborts).
		Bool("cancelled", rep.Cancelled).
		Msg("extraction finished")
}

// extract computes the coarse hash of one asset and inserts it in the index.
// A failed optimized decode falls back to decoding the raw bytes.
func (p *Pipeline) extract(ctx context.Context, ref models.AssetRef) error {
	img, err := p.lib.Decode(ctx, ref, hash.Fast)
	if err != nil {
		data, berr := p.lib.Bytes(ctx, ref)
		if berr != nil {
			return fmt.Errorf("decode %s: %w", ref.ID, err)
		}
		if img, err = hash.DecodeGeneric(data); err != nil {
			return fmt.Errorf("decode %s: %w", ref.ID, err)
		}
	}

	res, err := p.hasher.Extract(img, hash.Fast)
	if err != nil {
		return fmt.Errorf("hash %s: %w", ref.ID, err)
	}
	p.index.Insert(res.Signature.CoarseHash, ref)
	return nil
}

// refine regroups the current index snapshot and publishes the result. A
// pass interrupted by cancellation is discarded so the last complete pass
// stays published.
func (p *Pipeline) refine(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	groups := p.grouper.Refine(ctx, p.index.Snapshot())
	if ctx.Err() != nil {
		return
	}
	p.session.Publish(groups)
}

func (p *Pipeline) runMonths(assets []models.AssetRef) {
	p.session.SetMonthBuckets(group.MonthBuckets(assets))
	p.session.Advance(len(assets))
}

// Reconcile drops deleted assets from the published cache and from the
// state of a running scan. A pass that already took its snapshot is
// filtered by the session when it publishes.
func (p *Pipeline) Reconcile(deleted []models.AssetRef) {
	if len(deleted) == 0 {
		return
	}
	ids := make([]string, len(deleted))
	for i, d := range deleted {
		ids[i] = d.ID
	}
	p.index.Remove(ids...)
	if p.grouper != nil {
		p.grouper.Forget(ids...)
	}
	p.session.Reconcile(deleted)

	if !p.session.Status().IsScanning {
		p.persist()
	}
}

func (p *Pipeline) persist() {
	if p.store == nil {
		return
	}
	st := p.session.Status()
	if err := p.store.SaveResult(p.class, st.Groups, p.session.MonthBuckets()); err != nil {
		p.log.Warn().Err(err).Msg("failed to save result")
	}
}

func (p *Pipeline) record(total int, cancelled bool) {
	if p.store == nil {
		return
	}
	st := p.session.Status()
	dups := 0
	for _, g := range st.Groups {
		dups += len(g.Members) - 1
	}
	if err := p.store.RecordScan(p.class, total, len(st.Groups), dups, cancelled); err != nil {
		p.log.Warn().Err(err).Msg("failed to record scan")
	}
}

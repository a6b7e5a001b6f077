// Package engine runs one independent duplicate-detection pipeline per asset
// class and exposes the operations callers drive: start, cancel, poll,
// reconcile, and delete.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"mediadupfinder/internal/embed"
	"mediadupfinder/internal/hash"
	"mediadupfinder/internal/models"
)

// ErrUnknownClass is returned for an asset class the engine has no pipeline for
var ErrUnknownClass = errors.New("unknown asset class")

// Library is the media store the engine reads from and deletes through
type Library interface {
	// ListAssets returns every asset of kind
	ListAssets(ctx context.Context, kind models.Kind) ([]models.AssetRef, error)
	// Decode rasterizes an asset at the requested fidelity
	Decode(ctx context.Context, ref models.AssetRef, fidelity hash.Fidelity) (image.Image, error)
	// Bytes returns raw bytes for the generic decode fallback
	Bytes(ctx context.Context, ref models.AssetRef) ([]byte, error)
	// Delete removes assets and returns the ones actually deleted. A
	// non-nil error may accompany a partial success.
	Delete(ctx context.Context, refs []models.AssetRef) ([]models.AssetRef, error)
}

// ResultStore persists published results across processes
type ResultStore interface {
	SaveResult(class models.AssetClass, groups []models.DuplicateGroup, buckets []models.MonthBucket) error
	LoadResult(class models.AssetClass) ([]models.DuplicateGroup, []models.MonthBucket, error)
	RecordScan(class models.AssetClass, totalAssets, totalGroups, totalDuplicates int, cancelled bool) error
}

// Engine owns one Pipeline per asset class. Pipelines share no state and
// can run concurrently.
type Engine struct {
	lib       Library
	cfg       Config
	embedder  embed.Embedder
	store     ResultStore
	log       zerolog.Logger
	pipelines map[models.AssetClass]*Pipeline
}

// Option configures an Engine
type Option func(*Engine)

// WithConfig replaces the default configuration
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithEmbedder sets the feature-embedding capability
func WithEmbedder(em embed.Embedder) Option {
	return func(e *Engine) {
		if em != nil {
			e.embedder = em
		}
	}
}

// WithStore persists every published result to store
func WithStore(store ResultStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an Engine over lib
func New(lib Library, opts ...Option) *Engine {
	e := &Engine{
		lib:       lib,
		cfg:       DefaultConfig(),
		embedder:  embed.Unavailable{},
		log:       zerolog.Nop(),
		pipelines: make(map[models.AssetClass]*Pipeline, len(models.AllClasses)),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, class := range models.AllClasses {
		e.pipelines[class] = newPipeline(class, e)
	}
	return e
}

func (e *Engine) pipeline(class models.AssetClass) (*Pipeline, error) {
	p, ok := e.pipelines[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	return p, nil
}

// Restore loads the persisted result of every class into idle sessions
func (e *Engine) Restore() error {
	if e.store == nil {
		return nil
	}
	for _, class := range models.AllClasses {
		groups, buckets, err := e.store.LoadResult(class)
		if err != nil {
			return fmt.Errorf("failed to restore %s results: %w", class, err)
		}
		if len(groups) == 0 && len(buckets) == 0 {
			continue
		}
		e.pipelines[class].session.Restore(groups, buckets)
	}
	return nil
}

// StartScan lists the assets of class and starts scanning them in the
// background. Calling it while the class is already scanning is a no-op.
func (e *Engine) StartScan(ctx context.Context, class models.AssetClass) error {
	p, err := e.pipeline(class)
	if err != nil {
		return err
	}
	return p.Start(ctx)
}

// CancelScan requests a cooperative stop; groups found so far are kept
func (e *Engine) CancelScan(class models.AssetClass) {
	if p, err := e.pipeline(class); err == nil {
		p.Cancel()
	}
}

// Wait blocks until the current scan of class, if any, has finished
func (e *Engine) Wait(class models.AssetClass) {
	if p, err := e.pipeline(class); err == nil {
		p.Wait()
	}
}

// Status returns an immutable snapshot of the class's session
func (e *Engine) Status(class models.AssetClass) models.Status {
	p, err := e.pipeline(class)
	if err != nil {
		return models.Status{Class: class, State: models.StateIdle}
	}
	return p.session.Status()
}

// MonthBuckets returns the month partition of a screenshot or screen
// recording scan
func (e *Engine) MonthBuckets(class models.AssetClass) []models.MonthBucket {
	p, err := e.pipeline(class)
	if err != nil {
		return nil
	}
	return p.session.MonthBuckets()
}

// Subscribe returns a channel signalled on every change of the class's
// session and a function that releases it
func (e *Engine) Subscribe(class models.AssetClass) (<-chan struct{}, func(), error) {
	p, err := e.pipeline(class)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := p.session.Subscribe()
	return ch, cancel, nil
}

// Reconcile applies deletions the media store has already performed
func (e *Engine) Reconcile(class models.AssetClass, deleted []models.AssetRef) {
	p, err := e.pipeline(class)
	if err != nil {
		return
	}
	p.Reconcile(deleted)
}

// Toggle flips the deletion selection of one group member
func (e *Engine) Toggle(class models.AssetClass, groupID, assetID string) (bool, error) {
	p, err := e.pipeline(class)
	if err != nil {
		return false, err
	}
	selected, err := p.session.Toggle(groupID, assetID)
	if err != nil {
		return false, err
	}
	p.persist()
	return selected, nil
}

// DeleteSelected deletes every selected group member of class through the
// library. Only assets the library reports as deleted leave the cache; a
// library error is returned alongside the assets that were removed.
func (e *Engine) DeleteSelected(ctx context.Context, class models.AssetClass) ([]models.AssetRef, error) {
	p, err := e.pipeline(class)
	if err != nil {
		return nil, err
	}
	var selected []models.AssetRef
	for _, g := range p.session.Status().Groups {
		selected = append(selected, g.Selected()...)
	}
	return e.delete(ctx, p, selected)
}

// DeleteAssets deletes refs through the library and reconciles class with
// the assets actually removed
func (e *Engine) DeleteAssets(ctx context.Context, class models.AssetClass, refs []models.AssetRef) ([]models.AssetRef, error) {
	p, err := e.pipeline(class)
	if err != nil {
		return nil, err
	}
	return e.delete(ctx, p, refs)
}

func (e *Engine) delete(ctx context.Context, p *Pipeline, refs []models.AssetRef) ([]models.AssetRef, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	deleted, err := e.lib.Delete(ctx, refs)
	if len(deleted) > 0 {
		p.Reconcile(deleted)
	}
	if err != nil {
		e.log.Warn().Err(err).Str("class", string(p.class)).Int("deleted", len(deleted)).Int("requested", len(refs)).Msg("delete incomplete")
		return deleted, fmt.Errorf("delete: %w", err)
	}
	return deleted, nil
}

// CancelAll cancels every running scan and waits for them to stop
func (e *Engine) CancelAll() {
	for _, p := range e.pipelines {
		p.Cancel()
	}
	for _, p := range e.pipelines {
		p.Wait()
	}
}

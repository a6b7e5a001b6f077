package group

import (
	"context"
	"image"
	"sync"

	"github.com/rs/zerolog"

	"mediadupfinder/internal/embed"
	"mediadupfinder/internal/hash"
	"mediadupfinder/internal/index"
	"mediadupfinder/internal/match"
	"mediadupfinder/internal/models"
)

// Source provides frames for the refinement pass
type Source interface {
	// Decode is the optimized decode path
	Decode(ctx context.Context, ref models.AssetRef, fidelity hash.Fidelity) (image.Image, error)
	// Bytes returns the raw asset bytes for the generic decode fallback
	Bytes(ctx context.Context, ref models.AssetRef) ([]byte, error)
}

// Grouper refines coarse buckets into disjoint duplicate groups
type Grouper struct {
	src        Source
	classifier *match.Classifier
	hasher     *hash.Hasher
	embedder   embed.Embedder
	registry   *Registry
	log        zerolog.Logger

	mu         sync.Mutex
	samples    map[string]*match.Sample
	unreadable map[string]bool
}

// Option configures a Grouper
type Option func(*Grouper)

// WithEmbedder sets the feature-embedding capability
func WithEmbedder(e embed.Embedder) Option {
	return func(g *Grouper) {
		if e != nil {
			g.embedder = e
		}
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(g *Grouper) {
		g.log = l
	}
}

// NewGrouper creates a new Grouper
func NewGrouper(src Source, classifier *match.Classifier, opts ...Option) *Grouper {
	g := &Grouper{
		src:        src,
		classifier: classifier,
		hasher:     hash.NewHasher(),
		embedder:   embed.Unavailable{},
		registry:   NewRegistry(),
		log:        zerolog.Nop(),
		samples:    make(map[string]*match.Sample),
		unreadable: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reset drops cached samples and emitted groups before a new scan
func (g *Grouper) Reset() {
	g.mu.Lock()
	g.samples = make(map[string]*match.Sample)
	g.unreadable = make(map[string]bool)
	g.mu.Unlock()
	g.registry.Reset()
}

// Forget drops cached samples of deleted assets
func (g *Grouper) Forget(ids ...string) {
	g.mu.Lock()
	for _, id := range ids {
		delete(g.samples, id)
		delete(g.unreadable, id)
	}
	g.mu.Unlock()
}

// Refine runs pairwise classification inside every bucket of snap holding
// at least two assets. Assets are never compared across buckets. The result
// is the complete, disjoint group list for the snapshot; groups whose member
// set was emitted by an earlier pass keep their ID.
func (g *Grouper) Refine(ctx context.Context, snap index.Snapshot) []models.DuplicateGroup {
	var groups []models.DuplicateGroup
	fresh := 0

	for _, bucket := range snap.Candidates() {
		if ctx.Err() != nil {
			break
		}
		found, n := g.refineBucket(ctx, bucket.Assets)
		groups = append(groups, found...)
		fresh += n
	}

	if fresh > 0 {
		g.log.Debug().Int("groups", len(groups)).Int("new", fresh).Int("emitted", g.registry.Len()).Msg("refinement pass")
	}
	return groups
}

func (g *Grouper) refineBucket(ctx context.Context, assets []models.AssetRef) ([]models.DuplicateGroup, int) {
	visited := make(map[string]bool, len(assets))
	var groups []models.DuplicateGroup
	fresh := 0

	for i, a := range assets {
		if visited[a.ID] {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		visited[a.ID] = true

		sa := g.sample(ctx, a)
		if sa == nil {
			continue
		}

		var matched []models.AssetRef
		for _, b := range assets[i+1:] {
			if visited[b.ID] {
				continue
			}
			sb := g.sample(ctx, b)
			if sb == nil {
				visited[b.ID] = true
				continue
			}
			if v := g.classifier.Classify(sa, sb); v.Duplicate {
				visited[b.ID] = true
				matched = append(matched, b)
				g.log.Debug().Str("anchor", a.ID).Str("match", b.ID).Str("reason", string(v.Reason)).Msg("duplicate")
			}
		}
		if len(matched) == 0 {
			continue
		}

		group, isNew := g.registry.Emit(a, matched)
		if isNew {
			fresh++
		}
		groups = append(groups, group)
	}
	return groups, fresh
}

// sample loads the full-fidelity sample of ref: optimized decode, then a
// generic decode of the raw bytes, then skip. Unreadable assets are logged
// and excluded from grouping.
func (g *Grouper) sample(ctx context.Context, ref models.AssetRef) *match.Sample {
	g.mu.Lock()
	if s, ok := g.samples[ref.ID]; ok {
		g.mu.Unlock()
		return s
	}
	if g.unreadable[ref.ID] {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	img, err := g.src.Decode(ctx, ref, hash.Full)
	if err != nil {
		g.log.Debug().Err(err).Str("asset", ref.ID).Msg("optimized decode failed, retrying from bytes")
		var data []byte
		data, err = g.src.Bytes(ctx, ref)
		if err == nil {
			img, err = hash.DecodeGeneric(data)
		}
	}

	var res *hash.Result
	if err == nil {
		res, err = g.hasher.Extract(img, hash.Full)
	}
	if err != nil {
		g.log.Warn().Err(err).Str("asset", ref.ID).Str("path", ref.Path).Msg("excluding unreadable asset")
		g.mu.Lock()
		g.unreadable[ref.ID] = true
		g.mu.Unlock()
		return nil
	}

	s := match.NewSample(ref, res.Signature, res.Canonical, img)
	s.SetEmbedder(func() []float32 {
		return g.embed(ctx, ref)
	})

	g.mu.Lock()
	g.samples[ref.ID] = s
	g.mu.Unlock()
	return s
}

// embed re-decodes the frame on demand so samples never pin full frames
func (g *Grouper) embed(ctx context.Context, ref models.AssetRef) []float32 {
	img, err := g.src.Decode(ctx, ref, hash.Full)
	if err != nil {
		return nil
	}
	vec, err := g.embedder.Embed(ctx, img)
	if err != nil {
		g.log.Debug().Err(err).Str("asset", ref.ID).Msg("embedding inconclusive")
		return nil
	}
	return vec
}

package group

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"mediadupfinder/internal/embed"
	"mediadupfinder/internal/hash"
	"mediadupfinder/internal/index"
	"mediadupfinder/internal/match"
	"mediadupfinder/internal/models"
	"mediadupfinder/internal/testimg"
)

// fakeSource serves frames from memory; assets listed in broken fail the
// optimized decode and fall back to raw bytes
type fakeSource struct {
	frames map[string]image.Image
	raw    map[string][]byte
	broken map[string]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		frames: make(map[string]image.Image),
		raw:    make(map[string][]byte),
		broken: make(map[string]bool),
	}
}

func (f *fakeSource) Decode(ctx context.Context, ref models.AssetRef, _ hash.Fidelity) (image.Image, error) {
	if f.broken[ref.ID] {
		return nil, hash.ErrDecodeUnavailable
	}
	img, ok := f.frames[ref.ID]
	if !ok {
		return nil, hash.ErrDecodeUnavailable
	}
	return img, nil
}

func (f *fakeSource) Bytes(ctx context.Context, ref models.AssetRef) ([]byte, error) {
	data, ok := f.raw[ref.ID]
	if !ok {
		return nil, errors.New("no bytes")
	}
	return data, nil
}

func ref(id string, age time.Duration) models.AssetRef {
	return models.AssetRef{ID: id, CreationDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(-age)}
}

func newTestGrouper(src Source, opts ...Option) *Grouper {
	return NewGrouper(src, match.NewClassifier(match.Thresholds{}), opts...)
}

func TestRefine_IdenticalFramesFormOneGroup(t *testing.T) {
	src := newFakeSource()
	frame := testimg.Pattern(0, 32)
	snap := index.Snapshot{}
	for i, id := range []string{"a", "b", "c"} {
		src.frames[id] = frame
		snap[1] = append(snap[1], ref(id, time.Duration(i)*time.Hour))
	}

	groups := newTestGrouper(src).Refine(context.Background(), snap)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if len(g.Members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(g.Members))
	}
	// "c" is the oldest asset and becomes the anchor
	if g.Anchor().ID != "c" {
		t.Errorf("anchor = %s, want c", g.Anchor().ID)
	}
	if g.Members[0].Selected {
		t.Error("anchor should not be selected")
	}
	for _, m := range g.Members[1:] {
		if !m.Selected {
			t.Errorf("member %s should be selected", m.Asset.ID)
		}
	}
}

func TestRefine_NeverComparesAcrossBuckets(t *testing.T) {
	src := newFakeSource()
	frame := testimg.Pattern(1, 32)
	src.frames["a"] = frame
	src.frames["b"] = frame

	snap := index.Snapshot{
		1: {ref("a", 0)},
		2: {ref("b", 0)},
	}
	if groups := newTestGrouper(src).Refine(context.Background(), snap); len(groups) != 0 {
		t.Errorf("assets in different buckets were grouped: %v", groups)
	}
}

func TestRefine_SameBucketDistinctFrames(t *testing.T) {
	src := newFakeSource()
	src.frames["black"] = testimg.Solid(16, 16, color.Black)
	src.frames["white"] = testimg.Solid(16, 16, color.White)

	// solid frames share a coarse hash but differ in every pixel
	snap := index.Snapshot{0: {ref("black", 0), ref("white", time.Hour)}}
	if groups := newTestGrouper(src).Refine(context.Background(), snap); len(groups) != 0 {
		t.Errorf("expected no groups, got %d", len(groups))
	}
}

func TestRefine_Disjoint(t *testing.T) {
	src := newFakeSource()
	black := testimg.Solid(16, 16, color.Black)
	nearBlack := testimg.Solid(16, 16, color.Gray{Y: 20})
	white := testimg.Solid(16, 16, color.White)
	nearWhite := testimg.Solid(16, 16, color.Gray{Y: 235})

	src.frames["b1"] = black
	src.frames["b2"] = nearBlack
	src.frames["w1"] = white
	src.frames["w2"] = nearWhite

	snap := index.Snapshot{0: {
		ref("b1", 4*time.Hour), ref("w1", 3*time.Hour), ref("b2", 2*time.Hour), ref("w2", time.Hour),
	}}
	groups := newTestGrouper(src).Refine(context.Background(), snap)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	seen := make(map[string]bool)
	for _, g := range groups {
		for _, id := range g.IDs() {
			if seen[id] {
				t.Errorf("asset %s appears in two groups", id)
			}
			seen[id] = true
		}
	}
}

func TestRefine_FallbackToRawBytes(t *testing.T) {
	src := newFakeSource()
	frame := testimg.Pattern(2, 32)
	src.frames["a"] = frame
	src.broken["b"] = true
	src.raw["b"] = testimg.PNG(frame)

	snap := index.Snapshot{5: {ref("a", time.Hour), ref("b", 0)}}
	groups := newTestGrouper(src).Refine(context.Background(), snap)
	if len(groups) != 1 || len(groups[0].Members) != 2 {
		t.Fatalf("expected the fallback decode to recover b, got %v", groups)
	}
}

func TestRefine_UnreadableAssetsAreExcluded(t *testing.T) {
	src := newFakeSource()
	frame := testimg.Pattern(3, 32)
	src.frames["a"] = frame
	src.frames["b"] = frame
	src.broken["corrupt"] = true
	src.raw["corrupt"] = []byte("garbage")

	snap := index.Snapshot{9: {ref("corrupt", 2*time.Hour), ref("a", time.Hour), ref("b", 0)}}
	groups := newTestGrouper(src).Refine(context.Background(), snap)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	for _, id := range groups[0].IDs() {
		if id == "corrupt" {
			t.Error("unreadable asset should not be grouped")
		}
	}
	if groups[0].Anchor().ID != "a" {
		t.Errorf("anchor = %s, want a", groups[0].Anchor().ID)
	}
}

func TestRefine_StableIDsAcrossPasses(t *testing.T) {
	src := newFakeSource()
	frame := testimg.Pattern(0, 32)
	src.frames["a"] = frame
	src.frames["b"] = frame

	g := newTestGrouper(src)
	snap := index.Snapshot{1: {ref("a", time.Hour), ref("b", 0)}}

	first := g.Refine(context.Background(), snap)
	second := g.Refine(context.Background(), snap)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one group per pass, got %d and %d", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Errorf("group ID changed between passes: %s != %s", first[0].ID, second[0].ID)
	}

	g.Reset()
	third := g.Refine(context.Background(), snap)
	if third[0].ID == first[0].ID {
		t.Error("Reset should forget emitted groups")
	}
}

func TestRefine_EmbeddingStage(t *testing.T) {
	src := newFakeSource()
	src.frames["a"] = testimg.Solid(16, 16, color.Black)
	src.frames["b"] = testimg.Solid(16, 16, color.White)

	calls := 0
	emb := embed.Func(func(ctx context.Context, img image.Image) ([]float32, error) {
		calls++
		return []float32{1, 2, 3}, nil
	})

	snap := index.Snapshot{0: {ref("a", time.Hour), ref("b", 0)}}
	groups := newTestGrouper(src, WithEmbedder(emb)).Refine(context.Background(), snap)
	if len(groups) != 1 {
		t.Fatalf("expected embedding stage to match, got %d groups", len(groups))
	}
	if calls != 2 {
		t.Errorf("embedder called %d times, want 2", calls)
	}
}

func TestRefine_CancelledStopsBeforeRefining(t *testing.T) {
	src := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src.frames["a"] = testimg.Pattern(0, 16)
	snap := index.Snapshot{1: {ref("a", 0), ref("b", 0)}}
	if groups := newTestGrouper(src).Refine(ctx, snap); len(groups) != 0 {
		t.Errorf("cancelled pass should stop before refining, got %d groups", len(groups))
	}
}

func TestForget_ReloadsSample(t *testing.T) {
	src := newFakeSource()
	src.frames["a"] = testimg.Pattern(0, 16)
	src.frames["b"] = testimg.Pattern(0, 16)

	g := newTestGrouper(src)
	snap := index.Snapshot{1: {ref("a", time.Hour), ref("b", 0)}}
	if len(g.Refine(context.Background(), snap)) != 1 {
		t.Fatal("expected a group")
	}

	// once forgotten, a now-unreadable asset is no longer served from cache
	src.broken["b"] = true
	g.Forget("b")
	if groups := g.Refine(context.Background(), snap); len(groups) != 0 {
		t.Errorf("expected no groups after b became unreadable, got %d", len(groups))
	}
}

package match

import (
	"image"
	"image/color"
	"testing"

	"mediadupfinder/internal/models"
	"mediadupfinder/internal/testimg"
)

func sample(id string, sig models.Signature, canonical []byte, frame image.Image) *Sample {
	return NewSample(models.AssetRef{ID: id}, sig, canonical, frame)
}

// recorder counts invocations so tests can verify short-circuiting
type recorder struct {
	reason Reason
	dup    bool
	ok     bool
	calls  int
}

func (r *recorder) Reason() Reason { return r.reason }

func (r *recorder) Match(a, b *Sample) (bool, bool) {
	r.calls++
	return r.dup, r.ok
}

func TestClassifier_ShortCircuitsOnFirstPositive(t *testing.T) {
	first := &recorder{reason: "first", dup: true, ok: true}
	second := &recorder{reason: "second", dup: true, ok: true}

	c := NewClassifierWith(first, second)
	v := c.Classify(sample("a", models.Signature{}, nil, nil), sample("b", models.Signature{}, nil, nil))

	if !v.Duplicate || v.Reason != "first" {
		t.Errorf("verdict = %+v, want duplicate via first", v)
	}
	if second.calls != 0 {
		t.Errorf("second test ran %d times, want 0", second.calls)
	}
}

func TestClassifier_NegativeDoesNotStopChain(t *testing.T) {
	neg := &recorder{reason: "neg", dup: false, ok: true}
	pos := &recorder{reason: "pos", dup: true, ok: true}

	v := NewClassifierWith(neg, pos).Classify(sample("a", models.Signature{}, nil, nil), sample("b", models.Signature{}, nil, nil))
	if !v.Duplicate || v.Reason != "pos" {
		t.Errorf("verdict = %+v, want duplicate via pos", v)
	}
}

func TestClassifier_AllInconclusive(t *testing.T) {
	c := NewClassifier(Thresholds{})
	v := c.Classify(sample("a", models.Signature{}, nil, nil), sample("b", models.Signature{}, nil, nil))
	if v.Duplicate {
		t.Errorf("expected not duplicate when every stage is unavailable, got %+v", v)
	}
}

func TestClassifier_Stages(t *testing.T) {
	black := testimg.Solid(32, 32, color.Black)
	white := testimg.Solid(32, 32, color.White)
	nearBlack := testimg.Solid(32, 32, color.Gray{Y: 10})

	tests := []struct {
		name   string
		a, b   *Sample
		want   bool
		reason Reason
	}{
		{
			name:   "identical canonical bytes",
			a:      sample("a", models.Signature{}, []byte{1, 2, 3}, nil),
			b:      sample("b", models.Signature{}, []byte{1, 2, 3}, nil),
			want:   true,
			reason: ReasonExactBytes,
		},
		{
			name:   "same content hash",
			a:      sample("a", models.Signature{ContentHash: "abc"}, []byte{1}, nil),
			b:      sample("b", models.Signature{ContentHash: "abc"}, []byte{2}, nil),
			want:   true,
			reason: ReasonContentHash,
		},
		{
			name:   "near identical pixels",
			a:      sample("a", models.Signature{ContentHash: "abc"}, nil, black),
			b:      sample("b", models.Signature{ContentHash: "def"}, nil, nearBlack),
			want:   true,
			reason: ReasonPixelDiff,
		},
		{
			name:   "close embeddings",
			a:      sample("a", models.Signature{Embedding: []float32{0, 0, 0}}, nil, black),
			b:      sample("b", models.Signature{Embedding: []float32{0.1, 0.1, 0.1}}, nil, white),
			want:   true,
			reason: ReasonEmbedding,
		},
		{
			name: "distinct frames, far embeddings",
			a:    sample("a", models.Signature{Embedding: []float32{0, 0, 0}}, nil, black),
			b:    sample("b", models.Signature{Embedding: []float32{5, 5, 5}}, nil, white),
			want: false,
		},
		{
			name: "embedding length mismatch is inconclusive",
			a:    sample("a", models.Signature{Embedding: []float32{0, 0}}, nil, black),
			b:    sample("b", models.Signature{Embedding: []float32{0, 0, 0}}, nil, white),
			want: false,
		},
	}

	c := NewClassifier(Thresholds{PixelDiff: 0.1, Embedding: 0.9})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.a, tt.b)
			if v.Duplicate != tt.want {
				t.Fatalf("Duplicate = %v, want %v", v.Duplicate, tt.want)
			}
			if v.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", v.Reason, tt.reason)
			}
		})
	}
}

func TestMeanDifference(t *testing.T) {
	black := sample("a", models.Signature{}, nil, testimg.Solid(16, 16, color.Black))
	white := sample("b", models.Signature{}, nil, testimg.Solid(16, 16, color.White))

	d, ok := MeanDifference(black, white)
	if !ok {
		t.Fatal("expected difference to be computable")
	}
	if d < 0.99 {
		t.Errorf("black vs white difference = %f, want ~1", d)
	}

	d, _ = MeanDifference(black, black)
	if d != 0 {
		t.Errorf("self difference = %f, want 0", d)
	}

	if _, ok := MeanDifference(black, sample("c", models.Signature{}, nil, nil)); ok {
		t.Error("missing frame should be inconclusive")
	}
}

func TestDistance(t *testing.T) {
	d, ok := Distance([]float32{0, 3}, []float32{4, 0})
	if !ok || d != 5 {
		t.Errorf("Distance = %f, %v; want 5, true", d, ok)
	}
	if _, ok := Distance(nil, nil); ok {
		t.Error("empty vectors should be inconclusive")
	}
}

func TestThresholdDefaults(t *testing.T) {
	if got := NewPixelDiff(0).GetThreshold(); got != DefaultPixelDiffThreshold {
		t.Errorf("pixel diff default = %f", got)
	}
	if got := NewEmbedding(-1).GetThreshold(); got != DefaultEmbeddingThreshold {
		t.Errorf("embedding default = %f", got)
	}
	if got := NewEmbedding(0.5).GetThreshold(); got != 0.5 {
		t.Errorf("embedding threshold = %f, want 0.5", got)
	}
}

func TestClassifier_EmbeddingIsLazy(t *testing.T) {
	calls := 0
	lazy := func(v []float32) func() []float32 {
		return func() []float32 {
			calls++
			return v
		}
	}

	a := sample("a", models.Signature{}, []byte{9}, nil)
	b := sample("b", models.Signature{}, []byte{9}, nil)
	a.SetEmbedder(lazy([]float32{0}))
	b.SetEmbedder(lazy([]float32{0}))

	c := NewClassifier(Thresholds{})
	if v := c.Classify(a, b); v.Reason != ReasonExactBytes {
		t.Fatalf("Reason = %q, want exact bytes", v.Reason)
	}
	if calls != 0 {
		t.Errorf("embedding computed %d times for a pair settled by exact bytes", calls)
	}

	x := sample("x", models.Signature{}, nil, nil)
	y := sample("y", models.Signature{}, nil, nil)
	x.SetEmbedder(lazy([]float32{0, 0}))
	y.SetEmbedder(lazy([]float32{0, 0.5}))
	if v := c.Classify(x, y); v.Reason != ReasonEmbedding {
		t.Fatalf("Reason = %q, want embedding", v.Reason)
	}
	// a second classification reuses the cached vectors
	c.Classify(x, y)
	if calls != 2 {
		t.Errorf("embedding computed %d times, want 2", calls)
	}
}

package match

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"mediadupfinder/internal/models"
)

// Reason names the test that classified a pair as duplicate
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonExactBytes  Reason = "exact-bytes"
	ReasonContentHash Reason = "content-hash"
	ReasonPixelDiff   Reason = "pixel-diff"
	ReasonEmbedding   Reason = "embedding"
)

// diffSize is the edge of the grayscale thumbnail the pixel difference runs on
const diffSize = 64

// Sample is a full-fidelity view of one asset handed to the classifier
type Sample struct {
	Asset     models.AssetRef
	Signature models.Signature
	Canonical []byte

	thumb *image.NRGBA

	embedOnce sync.Once
	embedFn   func() []float32
}

// NewSample prepares a sample; frame may be nil when only the
// signature is known
func NewSample(asset models.AssetRef, sig models.Signature, canonical []byte, frame image.Image) *Sample {
	s := &Sample{Asset: asset, Signature: sig, Canonical: canonical}
	if frame != nil && !frame.Bounds().Empty() {
		s.thumb = imaging.Grayscale(imaging.Resize(frame, diffSize, diffSize, imaging.Lanczos))
	}
	return s
}

// SetEmbedder defers the feature embedding until a test asks for it
func (s *Sample) SetEmbedder(fn func() []float32) {
	s.embedFn = fn
}

// Embedding returns the feature vector, computing it on first use.
// nil means unavailable.
func (s *Sample) Embedding() []float32 {
	s.embedOnce.Do(func() {
		if len(s.Signature.Embedding) == 0 && s.embedFn != nil {
			s.Signature.Embedding = s.embedFn()
		}
	})
	return s.Signature.Embedding
}

// Verdict is the classifier's decision for a pair
type Verdict struct {
	Duplicate bool
	Reason    Reason
}

// Test is one stage of the classification chain. ok is false when the
// stage is inconclusive for the pair (missing input).
type Test interface {
	Reason() Reason
	Match(a, b *Sample) (duplicate, ok bool)
}

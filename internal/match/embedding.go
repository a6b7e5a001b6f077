package match

import "math"

// DefaultEmbeddingThreshold is the feature distance below which two
// frames are duplicates
const DefaultEmbeddingThreshold = 0.9

// Embedding compares feature vectors by Euclidean distance
type Embedding struct {
	threshold float64
}

// NewEmbedding creates a new Embedding test
func NewEmbedding(threshold float64) *Embedding {
	if threshold <= 0 {
		threshold = DefaultEmbeddingThreshold
	}
	return &Embedding{threshold: threshold}
}

func (*Embedding) Reason() Reason { return ReasonEmbedding }

// Match is inconclusive when either vector is missing or the lengths differ
func (e *Embedding) Match(a, b *Sample) (bool, bool) {
	d, ok := Distance(a.Embedding(), b.Embedding())
	if !ok {
		return false, false
	}
	return d < e.threshold, true
}

// GetThreshold returns the current threshold
func (e *Embedding) GetThreshold() float64 {
	return e.threshold
}

// Distance is the L2 distance between two feature vectors
func Distance(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), true
}

package match

import "math"

// DefaultPixelDiffThreshold is the mean absolute difference (0-1 scale)
// below which two frames are duplicates
const DefaultPixelDiffThreshold = 0.1

// PixelDiff builds a difference image of two grayscale thumbnails and
// compares its average magnitude against a threshold
type PixelDiff struct {
	threshold float64
}

// NewPixelDiff creates a new PixelDiff test
func NewPixelDiff(threshold float64) *PixelDiff {
	if threshold <= 0 {
		threshold = DefaultPixelDiffThreshold
	}
	return &PixelDiff{threshold: threshold}
}

func (*PixelDiff) Reason() Reason { return ReasonPixelDiff }

// Match reports whether the mean difference is below the threshold
func (p *PixelDiff) Match(a, b *Sample) (bool, bool) {
	d, ok := MeanDifference(a, b)
	if !ok {
		return false, false
	}
	return d < p.threshold, true
}

// GetThreshold returns the current threshold
func (p *PixelDiff) GetThreshold() float64 {
	return p.threshold
}

// MeanDifference returns the average per-pixel luminance difference of the
// two samples on a 0-1 scale
func MeanDifference(a, b *Sample) (float64, bool) {
	if a.thumb == nil || b.thumb == nil {
		return 0, false
	}
	pa, pb := a.thumb.Pix, b.thumb.Pix
	if len(pa) != len(pb) || len(pa) == 0 {
		return 0, false
	}

	var sum float64
	n := 0
	// grayscale NRGBA: R == G == B, sample the R channel
	for i := 0; i < len(pa); i += 4 {
		sum += math.Abs(float64(pa[i]) - float64(pb[i]))
		n++
	}
	return sum / float64(n) / 255, true
}

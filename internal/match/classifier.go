package match

// Classifier runs an ordered chain of tests, cheapest and most precise
// first, and stops at the first positive
type Classifier struct {
	tests []Test
}

// Thresholds configures the tunable stages of the default chain
type Thresholds struct {
	PixelDiff float64 `yaml:"pixel_diff"`
	Embedding float64 `yaml:"embedding"`
}

// NewClassifier builds the default four-stage chain
func NewClassifier(th Thresholds) *Classifier {
	return NewClassifierWith(
		NewExactBytes(),
		NewContentHash(),
		NewPixelDiff(th.PixelDiff),
		NewEmbedding(th.Embedding),
	)
}

// NewClassifierWith builds a chain from explicit tests, in order
func NewClassifierWith(tests ...Test) *Classifier {
	return &Classifier{tests: tests}
}

// Classify decides whether a and b are duplicates. Pairs for which every
// test is negative or inconclusive are not duplicates.
func (c *Classifier) Classify(a, b *Sample) Verdict {
	for _, t := range c.tests {
		if dup, ok := t.Match(a, b); ok && dup {
			return Verdict{Duplicate: true, Reason: t.Reason()}
		}
	}
	return Verdict{}
}

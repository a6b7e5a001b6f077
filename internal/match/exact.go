package match

import "bytes"

// ExactBytes matches pairs whose canonical re-encodings are byte-for-byte equal
type ExactBytes struct{}

// NewExactBytes creates a new ExactBytes test
func NewExactBytes() *ExactBytes {
	return &ExactBytes{}
}

func (ExactBytes) Reason() Reason { return ReasonExactBytes }

// Match compares canonical bytes
func (ExactBytes) Match(a, b *Sample) (bool, bool) {
	if len(a.Canonical) == 0 || len(b.Canonical) == 0 {
		return false, false
	}
	return bytes.Equal(a.Canonical, b.Canonical), true
}

// ContentHash matches pairs with identical content hashes, catching
// re-saved copies with identical pixels
type ContentHash struct{}

// NewContentHash creates a new ContentHash test
func NewContentHash() *ContentHash {
	return &ContentHash{}
}

func (ContentHash) Reason() Reason { return ReasonContentHash }

// Match compares content hashes
func (ContentHash) Match(a, b *Sample) (bool, bool) {
	if a.Signature.ContentHash == "" || b.Signature.ContentHash == "" {
		return false, false
	}
	return a.Signature.ContentHash == b.Signature.ContentHash, true
}

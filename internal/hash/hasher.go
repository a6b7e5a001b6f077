package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"mediadupfinder/internal/models"
)

// ErrDecodeUnavailable is returned when a frame cannot be rasterized
// at the requested fidelity
var ErrDecodeUnavailable = errors.New("decode unavailable")

// Fidelity selects how much of the signature is computed
type Fidelity int

const (
	// Fast computes the coarse hash only
	Fast Fidelity = iota
	// Full adds the canonical re-encoding and its content hash
	Full
)

func (f Fidelity) String() string {
	if f == Full {
		return "full"
	}
	return "fast"
}

const (
	// CanonicalSize is the edge of the square canonical re-encoding
	CanonicalSize = 256
)

// Hasher computes signatures for decoded frames
type Hasher struct {
	canonicalSize int
}

// NewHasher creates a new Hasher
func NewHasher() *Hasher {
	return &Hasher{canonicalSize: CanonicalSize}
}

// Result is the output of a full-fidelity extraction
type Result struct {
	Signature models.Signature
	Canonical []byte // canonical PNG re-encoding, nil for fast fidelity
}

// Extract computes the signature of img. The embedding is left empty;
// it is attached by the caller from the embedding capability.
func (h *Hasher) Extract(img image.Image, fidelity Fidelity) (*Result, error) {
	if !usable(img) {
		return nil, ErrDecodeUnavailable
	}

	coarse, err := CoarseHash(img)
	if err != nil {
		return nil, err
	}

	res := &Result{Signature: models.Signature{CoarseHash: coarse}}
	if fidelity == Fast {
		return res, nil
	}

	canonical, err := h.Canonical(img)
	if err != nil {
		return nil, err
	}
	res.Canonical = canonical
	res.Signature.ContentHash = ContentHash(canonical)

	return res, nil
}

// CoarseHash computes the 8x8 average-luminance fingerprint of img
func CoarseHash(img image.Image) (uint64, error) {
	if !usable(img) {
		return 0, ErrDecodeUnavailable
	}
	ah, err := goimagehash.AverageHash(img)
	if err != nil {
		return 0, fmt.Errorf("failed to compute hash: %w", err)
	}
	return ah.GetHash(), nil
}

// Canonical re-encodes img as a fixed-size PNG so that frames with
// identical pixels produce identical bytes regardless of source container
func (h *Hasher) Canonical(img image.Image) ([]byte, error) {
	if !usable(img) {
		return nil, ErrDecodeUnavailable
	}
	resized := imaging.Resize(img, h.canonicalSize, h.canonicalSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return nil, fmt.Errorf("failed to encode canonical frame: %w", err)
	}
	return buf.Bytes(), nil
}

// ContentHash computes the SHA256 hash of data
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Decode is the optimized decode path: EXIF orientation is applied so that
// rotated copies of the same shot line up
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeUnavailable, err)
	}
	return img, nil
}

// DecodeGeneric is the fallback decode path over raw bytes using the
// registered stdlib decoders
func DecodeGeneric(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeUnavailable, err)
	}
	return img, nil
}

// IsSupportedImage checks if a file is a supported image format
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif":
		return true
	default:
		return false
	}
}

// IsSupportedVideo checks if a file is a video container ffmpeg can read
func IsSupportedVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp4", ".mov", ".m4v", ".mkv", ".avi", ".webm", ".3gp":
		return true
	default:
		return false
	}
}

func usable(img image.Image) bool {
	if img == nil {
		return false
	}
	b := img.Bounds()
	return b.Dx() > 0 && b.Dy() > 0
}

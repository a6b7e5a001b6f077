// Package embed provides the feature-embedding capability consumed by the
// refinement stage. Frames are sent to an OpenAI-compatible /v1/embeddings
// server as base64 PNG data URIs; without an endpoint every call reports
// ErrUnavailable and the classifier skips the embedding stage.
package embed

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable is returned when no embedding can be computed for a frame
var ErrUnavailable = errors.New("embedding unavailable")

// Embedder converts a frame to a feature vector
type Embedder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
}

// Config configures the embedding client
type Config struct {
	// Endpoint is the base URL of the embedding server. Empty disables embeddings.
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	// Size is the edge of the square frame sent to the server
	Size    int           `yaml:"size"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.Size <= 0 {
		c.Size = 224
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// New creates an Embedder from config
func New(cfg Config, log zerolog.Logger) Embedder {
	cfg.defaults()
	if cfg.Endpoint == "" {
		return Unavailable{}
	}
	return newHTTPClient(cfg, log)
}

// Unavailable is the embedder used when no capability is configured
type Unavailable struct{}

// Embed always reports ErrUnavailable
func (Unavailable) Embed(context.Context, image.Image) ([]float32, error) {
	return nil, ErrUnavailable
}

// Func adapts a function to the Embedder interface
type Func func(ctx context.Context, img image.Image) ([]float32, error)

// Embed calls f
func (f Func) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	return f(ctx, img)
}

package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// httpClient implements Embedder against the OpenAI /v1/embeddings format
type httpClient struct {
	endpoint string
	model    string
	size     int
	client   *http.Client
	log      zerolog.Logger

	mu  sync.Mutex
	dim int // detected on first response
}

func newHTTPClient(cfg Config, log zerolog.Logger) *httpClient {
	return &httpClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		size:     cfg.Size,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      log,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func (c *httpClient) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrUnavailable
	}

	frame := imaging.Fill(img, c.size, c.size, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", ErrUnavailable, err)
	}
	input := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	body, err := json.Marshal(embedRequest{Model: c.model, Input: []string{input}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.endpoint + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %v", ErrUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: HTTP %d from %s: %s", ErrUnavailable, resp.StatusCode, url, string(respBody))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned from %s", ErrUnavailable, url)
	}

	vec := result.Data[0].Embedding
	c.mu.Lock()
	if c.dim == 0 {
		c.dim = len(vec)
		c.log.Info().Int("dimension", c.dim).Str("model", result.Model).Msg("detected embedding dimension")
	}
	c.mu.Unlock()

	return vec, nil
}

// Dimension returns the detected vector dimension, 0 before the first call
func (c *httpClient) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dim
}

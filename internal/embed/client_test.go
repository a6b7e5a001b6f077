package embed

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadupfinder/internal/testimg"
)

func TestNew_NoEndpointIsUnavailable(t *testing.T) {
	e := New(Config{}, zerolog.Nop())
	_, err := e.Embed(context.Background(), testimg.Pattern(0, 8))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "clip", req.Model)
		require.Len(t, req.Input, 1)
		assert.True(t, strings.HasPrefix(req.Input[0], "data:image/png;base64,"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"clip","data":[{"index":0,"embedding":[0.25,0.5,1]}]}`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL + "/", Model: "clip", Size: 16}, zerolog.Nop())
	vec, err := c.Embed(context.Background(), testimg.Pattern(1, 32))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, 1}, vec)
	assert.Equal(t, 3, c.(*httpClient).Dimension())
}

func TestHTTPClient_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL}, zerolog.Nop())
	_, err := c.Embed(context.Background(), testimg.Pattern(2, 32))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPClient_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := New(Config{Endpoint: srv.URL}, zerolog.Nop()).Embed(context.Background(), testimg.Pattern(3, 32))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFunc(t *testing.T) {
	f := Func(func(ctx context.Context, _ image.Image) ([]float32, error) {
		return []float32{1}, nil
	})
	vec, err := f.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
}

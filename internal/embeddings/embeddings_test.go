package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"Quarterly revenue report", "quarterly REVENUE report", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Equal(t, vecs[0], vecs[1], "case must not matter")
	var norm float64
	for _, x := range vecs[0] {
		norm += float64(x * x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	assert.Equal(t, float32(1), vecs[2][0])
}

func TestHashEmbedderSimilarity(t *testing.T) {
	e := NewHashEmbedder(256)
	vecs, err := e.Embed(context.Background(), []string{
		"the cafeteria menu changes every monday",
		"when does the cafeteria menu change",
		"server rack cooling failure",
	})
	require.NoError(t, err)
	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestToChromemFunc(t *testing.T) {
	f := ToChromemFunc(NewHashEmbedder(8))
	v, err := f(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 8)
}

func TestOllamaEmbedderBatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := ollamaEmbedResponse{}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{1, 0, 0})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder("nomic-embed-text", 3, srv.URL)
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, "ollama/nomic-embed-text", e.Name())
}

func TestOllamaEmbedderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder("missing", 3, srv.URL).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.True(t, apperr.IsKind(err, apperr.KindEmbedding))
}

func TestOllamaEmbedderRejectsWrongWidth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 0}}})
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder("nomic-embed-text", 3, srv.URL+"/").Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 dimensions")
}

func TestNewProviders(t *testing.T) {
	e, err := New("hash", "", "", 32, 0)
	require.NoError(t, err)
	assert.Equal(t, 32, e.Dimensions())

	t.Setenv("OPENAI_API_KEY", "")
	_, err = New("openai", "text-embedding-3-small", "", 1536, 0)
	assert.Error(t, err)

	_, err = New("cohere", "", "", 8, 0)
	assert.Error(t, err)
}

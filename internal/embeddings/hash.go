package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder. Each lowercased
// token is hashed into one of dims buckets and the vector is L2-normalized,
// so texts sharing words have a positive cosine similarity. It needs no
// external service and backs offline runs and tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a HashEmbedder with dims dimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Name() string    { return "hash" }
func (e *HashEmbedder) Dimensions() int { return e.dims }

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		v[h.Sum32()%uint32(e.dims)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		// Keep the vector non-zero so cosine similarity stays defined.
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// Hash is an offline embedder: lowercased whitespace tokens are hashed into a
// fixed number of signed buckets and the result is L2-normalized. Texts that
// share words get positive cosine similarity.
type Hash struct {
	dims int
}

// NewHash builds a feature-hashing embedder with dims buckets.
func NewHash(dims int) (*Hash, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("hash embedder needs dimensions > 0, got %d", dims)
	}
	return &Hash{dims: dims}, nil
}

// Model identifies the bucket count, since vectors of different sizes are incomparable.
func (h *Hash) Model() string {
	return fmt.Sprintf("%s:%d", ProviderHash, h.dims)
}

// Embed never fails except on cancellation.
func (h *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("hash embed: %w", err)
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hash) vector(text string) []float32 {
	vec := make([]float32, h.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		bucket := int(sum % uint64(h.dims))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

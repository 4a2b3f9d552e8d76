package embed

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/screenager/vexd/internal/vecmath"
)

// HashEmbedder maps each distinct text to a fixed pseudo-random unit vector
// seeded from the text's FNV hash. It carries no semantics — identical texts
// are identical vectors, everything else is near-orthogonal at reasonable
// dimensions — but it is deterministic, dependency-free, and fast, which
// makes it the offline fallback and the test vehicle.
type HashEmbedder struct {
	dim int
}

// NewHash creates a hash embedder of the given dimension.
func NewHash(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &HashEmbedder{dim: dim}
}

// Dim returns the embedding dimension.
func (e *HashEmbedder) Dim() int { return e.dim }

// EmbedOne returns the text's deterministic unit vector.
func (e *HashEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, e.dim)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
	}
	vecmath.Normalize(vec)
	return vec, nil
}

// EmbedBatch embeds texts in order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

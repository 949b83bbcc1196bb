// Package embed turns text into dense vectors.
package embed

import (
	"context"
	"errors"
	"math"
)

// Embedder produces fixed-size vectors for text. Implementations are
// deterministic for a given model and safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelName() string
}

var (
	ErrEmptyEmbedding     = errors.New("embedding provider returned no vector")
	ErrDimensionsMismatch = errors.New("embedding dimensions mismatch")
)

// normalize scales v to unit length in place. Zero vectors are returned as is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

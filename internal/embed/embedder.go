// Package embed maps text to fixed-dimension, L2-normalized vectors.
package embed

import (
	"context"
	"math"
)

// Embedder is the embedding capability consumed by the pipeline. Inference
// is CPU-bound on the backend side; callers on a request-serving path must
// invoke it from worker goroutines. Implementations are safe for concurrent
// use.
type Embedder interface {
	// EmbedBatch returns one unit-normalized vector per input, in input
	// order. An empty input returns an empty result without touching the
	// backend.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension is the fixed vector dimension. All vectors ever stored
	// share it; changing models requires a full re-embed.
	Dimension() int
}

// normalize scales v to unit L2 norm in place. Zero vectors are left as-is.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

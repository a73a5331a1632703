// Package embed defines the embedding-provider boundary. The core treats
// vectors as opaque fixed-length float slices; the only assumption is
// that all vectors produced by one model share a dimension.
package embed

import (
	"context"
	"math"
)

// Embedder turns text into a fixed-length vector. Implementations own any
// timeout/retry policy — the core imposes none.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
	Dimension() int
}

// Cosine returns the cosine similarity dot(a,b)/(|a|*|b|). Mismatched
// lengths or a zero vector yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Mean returns the per-dimension arithmetic mean of the vectors. Vectors
// whose length differs from the first are skipped. Returns nil when no
// usable vector exists.
func Mean(vectors [][]float32) []float32 {
	var sum []float64
	count := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(v))
		}
		if len(v) != len(sum) {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		count++
	}
	if count == 0 {
		return nil
	}
	mean := make([]float32, len(sum))
	for i, x := range sum {
		mean[i] = float32(x / float64(count))
	}
	return mean
}

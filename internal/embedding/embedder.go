// Package embedding holds what every embedder implementation shares.
package embedding

import (
	"errors"
	"math"
)

var (
	// ErrEmptyInput is returned when there is nothing to embed.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig is returned for unknown models or bad settings.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed wraps provider failures.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Normalize scales v to unit length in place and returns it. Zero vectors are
// returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// Batches splits texts into consecutive slices of at most size elements.
func Batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		out = append(out, texts[start:end])
	}
	return out
}

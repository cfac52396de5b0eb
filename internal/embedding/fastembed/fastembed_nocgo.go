//go:build !cgo

package fastembed

import "context"

type Config struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}

// Embedder is a stub for non-cgo builds.
type Embedder struct{}

func New(_ Config) (*Embedder, error) {
	return nil, ErrFastEmbedUnavailable
}

func (e *Embedder) Name() string { return "fastembed" }

func (e *Embedder) Dimension() int { return 0 }

func (e *Embedder) EmbedDocuments(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (e *Embedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (e *Embedder) Close() error { return nil }

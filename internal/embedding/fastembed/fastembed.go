//go:build cgo

// Package fastembed embeds text locally with ONNX sentence-transformer models.
package fastembed

import (
	"context"
	"fmt"
	"sync"

	fe "github.com/anush008/fastembed-go"

	"pdfqa/internal/embedding"
)

// Config holds configuration for the local embedder.
type Config struct {
	// Model accepts the Hugging Face name or the fastembed constant name.
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}

// Embedder produces L2-normalized sentence embeddings.
type Embedder struct {
	model     *fe.FlagEmbedding
	modelName string
	dimension int
	batchSize int
	mu        sync.RWMutex
}

var modelMapping = map[string]fe.EmbeddingModel{
	"sentence-transformers/all-MiniLM-L6-v2": fe.AllMiniLML6V2,
	"all-MiniLM-L6-v2":                       fe.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fe.BGESmallENV15,
	"BAAI/bge-small-en":                      fe.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fe.BGEBaseENV15,
	"BAAI/bge-base-en":                       fe.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fe.BGESmallZH,
}

var modelDimensions = map[fe.EmbeddingModel]int{
	fe.AllMiniLML6V2: 384,
	fe.BGESmallENV15: 384,
	fe.BGESmallEN:    384,
	fe.BGEBaseENV15:  768,
	fe.BGEBaseEN:     768,
	fe.BGESmallZH:    512,
}

// New loads (downloading on first use) the configured model.
func New(cfg Config) (*Embedder, error) {
	model, ok := modelMapping[cfg.Model]
	if !ok {
		model = fe.EmbeddingModel(cfg.Model)
		if _, known := modelDimensions[model]; !known {
			return nil, fmt.Errorf("%w: unsupported model %q", embedding.ErrInvalidConfig, cfg.Model)
		}
	}
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = 256
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	showProgress := false
	flag, err := fe.NewFlagEmbedding(&fe.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}
	return &Embedder{
		model:     flag,
		modelName: cfg.Model,
		dimension: modelDimensions[model],
		batchSize: batch,
	}, nil
}

func (e *Embedder) Name() string { return "fastembed" }

func (e *Embedder) Dimension() int { return e.dimension }

// EmbedDocuments embeds texts without query/passage prefixes so documents and
// questions share one space.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", embedding.ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	out, err := e.model.Embed(texts, e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedding.ErrEmbeddingFailed, err)
	}
	for i := range out {
		embedding.Normalize(out[i])
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", embedding.ErrEmptyInput)
	}
	out, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Destroy()
	e.model = nil
	return err
}

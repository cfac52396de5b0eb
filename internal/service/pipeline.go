// Package service ties extraction, indexing and question answering together.
package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pdfqa/internal/corpus"
	"pdfqa/internal/domain"
	"pdfqa/internal/llm"
	"pdfqa/internal/pdftext"
	"pdfqa/internal/vectorstore/local"
)

var (
	// ErrNoIndex is returned when there is no embeddings file or it is empty.
	ErrNoIndex = errors.New("no trained model found")

	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrInvalidIndex is returned when an imported file cannot be loaded.
	ErrInvalidIndex = errors.New("invalid embeddings file")
)

// Extractor walks a directory of PDFs.
type Extractor interface {
	ExtractDir(ctx context.Context, dir string, fn func(pdftext.Result) error) (pdftext.DirStats, error)
}

// ModelSelector picks the chat model for a question.
type ModelSelector interface {
	Select(ctx context.Context) string
}

// Paths locates the files the pipeline reads and writes.
type Paths struct {
	PDFDir         string
	CorpusFile     string
	EmbeddingsFile string
}

// Options tunes answering and summaries.
type Options struct {
	SystemPrompt        string
	ContextChars        int
	SummaryMaxSentences int
	AskTimeout          time.Duration
}

// Deps are the pipeline's collaborators. Mirror is optional.
type Deps struct {
	Extractor  Extractor
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Summarizer domain.Summarizer
	Chatter    domain.Chatter
	Selector   ModelSelector
	Mirror     domain.VectorStore
	Logger     *zap.Logger
}

// Answer is the reply to a question and the context it was based on.
type Answer struct {
	Text    string  `json:"answer"`
	Model   string  `json:"model"`
	Source  string  `json:"source"`
	Context string  `json:"context"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

// ProcessStats summarizes a Process run.
type ProcessStats struct {
	pdftext.DirStats
	Chunks int
}

// DocumentInfo describes one indexed PDF.
type DocumentInfo struct {
	Source  string `json:"source"`
	Chunks  int    `json:"chunks"`
	Summary string `json:"summary"`
}

// Pipeline is safe for concurrent use. Process and Import are serialized;
// questions are answered concurrently from the last loaded index.
type Pipeline struct {
	deps   Deps
	paths  Paths
	opts   Options
	logger *zap.Logger

	writeMu  sync.Mutex
	mu       sync.RWMutex
	store    *local.Store
	loadedAt time.Time
}

func NewPipeline(deps Deps, paths Paths, opts Options) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SummaryMaxSentences <= 0 {
		opts.SummaryMaxSentences = 2
	}
	if opts.ContextChars <= 0 {
		opts.ContextChars = 1000
	}
	return &Pipeline{
		deps:   deps,
		paths:  paths,
		opts:   opts,
		logger: logger,
		store:  local.New(logger),
	}
}

// EmbeddingsFile is the path of the persisted index.
func (p *Pipeline) EmbeddingsFile() string { return p.paths.EmbeddingsFile }

// HasIndex reports whether the embeddings file exists.
func (p *Pipeline) HasIndex() bool {
	info, err := os.Stat(p.paths.EmbeddingsFile)
	return err == nil && info.Mode().IsRegular()
}

// Extract writes the training corpus from every PDF in the PDF directory.
func (p *Pipeline) Extract(ctx context.Context) (pdftext.DirStats, error) {
	w, err := corpus.Create(p.paths.CorpusFile)
	if err != nil {
		return pdftext.DirStats{}, fmt.Errorf("creating corpus: %w", err)
	}
	stats, err := p.deps.Extractor.ExtractDir(ctx, p.paths.PDFDir, func(res pdftext.Result) error {
		return w.Write(corpus.Record{Text: res.Text, Source: res.Source})
	})
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return stats, err
	}
	p.logger.Info("training corpus written",
		zap.String("path", p.paths.CorpusFile),
		zap.Int("documents", w.Count()),
	)
	return stats, nil
}

// SavePDF stores an uploaded file in the PDF directory under its base name.
func (p *Pipeline) SavePDF(name string, r io.Reader) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(p.paths.PDFDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(p.paths.PDFDir, base)
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", err
	}
	return dst, f.Close()
}

// Process rebuilds the index from every PDF in the PDF directory and writes
// the embeddings file, even when there is nothing to index.
func (p *Pipeline) Process(ctx context.Context) (ProcessStats, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := os.MkdirAll(p.paths.PDFDir, 0o755); err != nil {
		return ProcessStats{}, err
	}

	var docs []domain.Document
	dirStats, err := p.deps.Extractor.ExtractDir(ctx, p.paths.PDFDir, func(res pdftext.Result) error {
		docs = append(docs, domain.Document{ID: hashString(res.Source), Source: res.Source, Content: res.Text})
		return nil
	})
	stats := ProcessStats{DirStats: dirStats}
	if err != nil {
		return stats, err
	}

	records, err := p.buildRecords(ctx, docs)
	if err != nil {
		return stats, err
	}
	stats.Chunks = len(records)

	store := local.New(p.logger)
	if err := store.Add(ctx, records); err != nil {
		return stats, err
	}
	if err := store.Save(p.paths.EmbeddingsFile); err != nil {
		return stats, fmt.Errorf("saving embeddings: %w", err)
	}
	p.swap(store)

	if err := p.mirror(ctx, store); err != nil {
		return stats, err
	}
	p.logger.Info("processing complete",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(records)),
		zap.String("embeddings", p.paths.EmbeddingsFile),
	)
	return stats, nil
}

func (p *Pipeline) buildRecords(ctx context.Context, docs []domain.Document) ([]domain.Record, error) {
	var records []domain.Record
	for _, d := range docs {
		chunks, err := p.deps.Chunker.Chunk(d)
		if err != nil {
			return nil, fmt.Errorf("chunking %s: %w", d.Source, err)
		}
		if len(chunks) == 0 {
			continue
		}
		// Summarize
		summary, err := p.deps.Summarizer.Summarize(d.Content, p.opts.SummaryMaxSentences)
		if err != nil {
			return nil, fmt.Errorf("summarizing %s: %w", d.Source, err)
		}
		for _, ch := range chunks {
			records = append(records, domain.Record{Chunk: ch, Summary: summary})
		}
	}
	if len(records) == 0 {
		return nil, nil
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Chunk.Text
	}
	vectors, err := p.deps.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(records))
	}
	for i := range records {
		records[i].Vector = vectors[i]
	}
	return records, nil
}

// mirror copies the store into the optional remote index.
func (p *Pipeline) mirror(ctx context.Context, store *local.Store) error {
	if p.deps.Mirror == nil {
		return nil
	}
	records := store.Records()
	if len(records) == 0 {
		p.logger.Warn("nothing to mirror, remote index left unchanged")
		return nil
	}
	if err := p.deps.Mirror.Reset(ctx, store.Dimension()); err != nil {
		return fmt.Errorf("resetting mirror: %w", err)
	}
	if err := p.deps.Mirror.Add(ctx, records); err != nil {
		return fmt.Errorf("mirroring records: %w", err)
	}
	p.logger.Info("mirrored index", zap.Int("records", len(records)))
	return nil
}

func (p *Pipeline) swap(store *local.Store) {
	info, _ := os.Stat(p.paths.EmbeddingsFile)
	p.mu.Lock()
	p.store = store
	if info != nil {
		p.loadedAt = info.ModTime()
	}
	p.mu.Unlock()
}

// current returns the store for the embeddings file on disk, reloading it
// when the file changed since it was last read. A reload also refreshes the
// mirror.
func (p *Pipeline) current(ctx context.Context) (*local.Store, error) {
	info, err := os.Stat(p.paths.EmbeddingsFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoIndex
	}
	if err != nil {
		return nil, err
	}
	if store, ok := p.loaded(info.ModTime()); ok {
		return store, nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if store, ok := p.loaded(info.ModTime()); ok {
		return store, nil
	}

	store := local.New(p.logger)
	if err := store.Load(ctx, p.paths.EmbeddingsFile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	p.mu.Lock()
	p.store, p.loadedAt = store, info.ModTime()
	p.mu.Unlock()

	if err := p.mirror(ctx, store); err != nil {
		p.logger.Warn("could not refresh mirror, answering from the embeddings file", zap.Error(err))
	}
	return store, nil
}

func (p *Pipeline) loaded(modTime time.Time) (*local.Store, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store, !p.loadedAt.IsZero() && p.loadedAt.Equal(modTime)
}

// Ask finds the best matching chunk and has the chat model answer from it.
func (p *Pipeline) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	best, err := p.Retrieve(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	if p.opts.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.AskTimeout)
		defer cancel()
	}
	model := p.deps.Selector.Select(ctx)
	prompt := llm.BuildUserPrompt(best.Chunk.Text, question, p.opts.ContextChars)
	reply, err := p.deps.Chatter.Chat(ctx, model, p.opts.SystemPrompt, prompt)
	if err != nil {
		return Answer{}, err
	}
	p.logger.Info("answered question",
		zap.String("model", model),
		zap.String("source", best.Chunk.Source),
		zap.Float64("score", best.Score),
	)
	return Answer{
		Text:    reply,
		Model:   model,
		Source:  best.Chunk.Source,
		Context: best.Chunk.Text,
		Summary: best.Summary,
		Score:   best.Score,
	}, nil
}

// Retrieve returns the highest scoring chunk for question.
func (p *Pipeline) Retrieve(ctx context.Context, question string) (domain.SearchResult, error) {
	store, err := p.current(ctx)
	if err != nil {
		return domain.SearchResult{}, err
	}
	if n, _ := store.Count(ctx); n == 0 {
		return domain.SearchResult{}, ErrNoIndex
	}
	vec, err := p.deps.Embedder.EmbedQuery(ctx, question)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("embedding question: %w", err)
	}
	if p.deps.Mirror != nil {
		res, err := p.deps.Mirror.Search(ctx, vec, 1)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return domain.SearchResult{}, ctx.Err()
			}
			p.logger.Warn("mirror search failed, answering from the embeddings file", zap.Error(err))
		case len(res) == 0:
			p.logger.Warn("mirror is empty, answering from the embeddings file")
		default:
			return res[0], nil
		}
	}
	return store.Best(ctx, vec)
}

// Import replaces the embeddings file with the content of r after checking
// it loads.
func (p *Pipeline) Import(ctx context.Context, r io.Reader) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	dir := filepath.Dir(p.paths.EmbeddingsFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, ".import-*.tmp")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}

	store := local.New(p.logger)
	if err := store.Load(ctx, tmpName); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	if err := os.Rename(tmpName, p.paths.EmbeddingsFile); err != nil {
		return 0, err
	}
	p.swap(store)
	if err := p.mirror(ctx, store); err != nil {
		return 0, err
	}
	n, _ := store.Count(ctx)
	p.logger.Info("imported embeddings", zap.Int("records", n))
	return n, nil
}

// Export copies the embeddings file to w.
func (p *Pipeline) Export(w io.Writer) error {
	f, err := os.Open(p.paths.EmbeddingsFile)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNoIndex
	}
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Documents lists indexed PDFs in index order.
func (p *Pipeline) Documents(ctx context.Context) ([]DocumentInfo, error) {
	store, err := p.current(ctx)
	if err != nil {
		return nil, err
	}
	var out []DocumentInfo
	pos := map[string]int{}
	for _, r := range store.Records() {
		i, ok := pos[r.Chunk.Source]
		if !ok {
			i = len(out)
			pos[r.Chunk.Source] = i
			out = append(out, DocumentInfo{Source: r.Chunk.Source, Summary: r.Summary})
		}
		out[i].Chunks++
	}
	return out, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}

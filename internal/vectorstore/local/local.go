// Package local keeps the index in memory with chromem-go and persists it as
// a single embeddings file.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"pdfqa/internal/domain"
	"pdfqa/internal/vectorstore"
)

// ErrInvalidFile is returned when a file is not an embeddings export.
var ErrInvalidFile = errors.New("not a valid embeddings file")

// Store is an in-memory chromem collection plus the ordered records it holds.
type Store struct {
	mu        sync.RWMutex
	db        *chromem.DB
	coll      *chromem.Collection
	records   []domain.Record
	dimension int
	logger    *zap.Logger
}

// New returns an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{logger: logger}
	_ = s.reset(0)
	return s
}

// noEmbedding keeps chromem from reaching for a default remote embedder; every
// document and query here carries its own vector.
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("embeddings must be supplied")
}

func (s *Store) reset(dimension int) error {
	db := chromem.NewDB()
	coll, err := db.GetOrCreateCollection(vectorstore.Collection, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	s.db, s.coll, s.records, s.dimension = db, coll, nil, dimension
	return nil
}

// Reset drops every record. A zero dimension is taken from the first Add.
func (s *Store) Reset(_ context.Context, dimension int) error {
	if dimension < 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reset(dimension)
}

// Add appends records in order.
func (s *Store) Add(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	if dim == 0 {
		dim = len(records[0].Vector)
	}
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", vectorstore.ErrDimensionMismatch)
	}
	if err := vectorstore.CheckDimension(records, dim); err != nil {
		return err
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		order := len(s.records) + i
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(order),
			Metadata:  vectorstore.Metadata(r, order),
			Embedding: r.Vector,
			Content:   r.Chunk.Text,
		}
	}
	if err := s.coll.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	s.dimension = dim
	s.records = append(s.records, records...)
	return nil
}

// Search returns up to topK results ranked by similarity.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.coll.Count()
	if n == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", vectorstore.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}
	// Pull every candidate so ties are broken by order rather than by
	// chromem's concurrent scan.
	res, err := s.coll.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	out := make([]domain.SearchResult, 0, len(res))
	for _, r := range res {
		ch, summary, order, err := vectorstore.FromMetadata(r.Metadata, r.Content)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.SearchResult{Chunk: ch, Summary: summary, Score: float64(r.Similarity), Order: order})
	}
	vectorstore.Rank(out)
	if topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

// Best returns the single highest scoring record, earliest on ties.
func (s *Store) Best(ctx context.Context, vector []float32) (domain.SearchResult, error) {
	res, err := s.Search(ctx, vector, 1)
	if err != nil {
		return domain.SearchResult{}, err
	}
	if len(res) == 0 {
		return domain.SearchResult{}, vectorstore.ErrEmptyIndex
	}
	return res[0], nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Dimension is zero until the first record is added.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Records returns a copy of the records in index order.
func (s *Store) Records() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Save writes the index to path through a temp file in the same directory.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".embeddings-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpName)

	if err := s.db.ExportToFile(tmpName, false, ""); err != nil {
		return fmt.Errorf("exporting index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	s.logger.Info("saved embeddings file", zap.String("path", path), zap.Int("records", len(s.records)))
	return nil
}

// Load replaces the store's content with the file at path. On error the
// current content is kept.
func (s *Store) Load(ctx context.Context, path string) error {
	db, coll, records, dim, err := read(ctx, path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.db, s.coll, s.records, s.dimension = db, coll, records, dim
	s.mu.Unlock()
	s.logger.Info("loaded embeddings file", zap.String("path", path), zap.Int("records", len(records)))
	return nil
}

// Validate checks that path holds a loadable embeddings file.
func Validate(ctx context.Context, path string) (int, error) {
	_, _, records, _, err := read(ctx, path)
	return len(records), err
}

func read(ctx context.Context, path string) (*chromem.DB, *chromem.Collection, []domain.Record, int, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, nil, 0, err
	}
	db := chromem.NewDB()
	if err := db.ImportFromFile(path, ""); err != nil {
		return nil, nil, nil, 0, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	coll := db.GetCollection(vectorstore.Collection, noEmbedding)
	if coll == nil {
		return nil, nil, nil, 0, fmt.Errorf("%w: collection %q missing", ErrInvalidFile, vectorstore.Collection)
	}

	n := coll.Count()
	records := make([]domain.Record, n)
	dim := 0
	for i := 0; i < n; i++ {
		doc, err := coll.GetByID(ctx, strconv.Itoa(i))
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("%w: record %d: %v", ErrInvalidFile, i, err)
		}
		ch, summary, _, err := vectorstore.FromMetadata(doc.Metadata, doc.Content)
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("%w: record %d: %v", ErrInvalidFile, i, err)
		}
		if dim == 0 {
			dim = len(doc.Embedding)
		}
		if len(doc.Embedding) == 0 || len(doc.Embedding) != dim {
			return nil, nil, nil, 0, fmt.Errorf("%w: record %d: %v", ErrInvalidFile, i, vectorstore.ErrDimensionMismatch)
		}
		records[i] = domain.Record{Chunk: ch, Summary: summary, Vector: doc.Embedding}
	}
	return db, coll, records, dim, nil
}

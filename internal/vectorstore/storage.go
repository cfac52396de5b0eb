// Package vectorstore holds what the local file store and the Qdrant mirror
// share: payload keys and result ranking.
package vectorstore

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"pdfqa/internal/domain"
)

// Collection is the collection name used in the embeddings file and in Qdrant.
const Collection = "pdfqa"

var (
	// ErrEmptyIndex is returned when a best match is requested from no records.
	ErrEmptyIndex = errors.New("vector index is empty")

	// ErrDimensionMismatch is returned when a vector does not fit the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Metadata keys stored next to every vector.
const (
	KeySource     = "source"
	KeyDocumentID = "doc_id"
	KeyChunkID    = "chunk_id"
	KeyIndex      = "index"
	KeyOrder      = "order"
	KeySummary    = "summary"
	KeyText       = "text"
)

// Metadata flattens a record for storage. Text is not included.
func Metadata(r domain.Record, order int) map[string]string {
	return map[string]string{
		KeySource:     r.Chunk.Source,
		KeyDocumentID: r.Chunk.DocumentID,
		KeyChunkID:    r.Chunk.ChunkID,
		KeyIndex:      strconv.Itoa(r.Chunk.Index),
		KeyOrder:      strconv.Itoa(order),
		KeySummary:    r.Summary,
	}
}

// FromMetadata rebuilds a chunk, its summary and its order.
func FromMetadata(md map[string]string, text string) (domain.Chunk, string, int, error) {
	idx, err := strconv.Atoi(md[KeyIndex])
	if err != nil {
		return domain.Chunk{}, "", 0, fmt.Errorf("bad %s metadata: %w", KeyIndex, err)
	}
	order, err := strconv.Atoi(md[KeyOrder])
	if err != nil {
		return domain.Chunk{}, "", 0, fmt.Errorf("bad %s metadata: %w", KeyOrder, err)
	}
	ch := domain.Chunk{
		DocumentID: md[KeyDocumentID],
		ChunkID:    md[KeyChunkID],
		Source:     md[KeySource],
		Text:       text,
		Index:      idx,
	}
	return ch, md[KeySummary], order, nil
}

// Rank sorts results by score, highest first. Equal scores keep index order,
// so the first result is the argmax with earliest-wins ties.
func Rank(results []domain.SearchResult) {
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return a.Order - b.Order
	})
}

// CheckDimension verifies every record vector has the given length.
func CheckDimension(records []domain.Record, dimension int) error {
	for i, r := range records {
		if len(r.Vector) != dimension {
			return fmt.Errorf("%w: record %d has %d, want %d", ErrDimensionMismatch, i, len(r.Vector), dimension)
		}
	}
	return nil
}

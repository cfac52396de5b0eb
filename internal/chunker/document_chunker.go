package chunker

import (
	"strings"

	"pdfqa/internal/domain"
)

// DocumentChunker keeps each document whole, one chunk per PDF.
type DocumentChunker struct{}

func NewDocumentChunker() DocumentChunker { return DocumentChunker{} }

func (DocumentChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(document.Content) == "" {
		return nil, nil
	}
	return []domain.Chunk{newChunk(document, 0, document.Content)}, nil
}

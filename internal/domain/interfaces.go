package domain

import "context"

// Document is the extracted text of a single PDF.
type Document struct {
	ID      string
	Source  string
	Content string
}

// Chunk is the unit of text that gets embedded and matched against questions.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Source     string
	Text       string
	Index      int
}

// Record pairs a chunk with its embedding vector. A list of records is what
// the embeddings file holds.
type Record struct {
	Chunk   Chunk
	Summary string
	Vector  []float32
}

// SearchResult represents a matching chunk with a similarity score. Order is
// the record's position in the index and breaks score ties.
type SearchResult struct {
	Chunk   Chunk
	Summary string
	Score   float64
	Order   int
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorStore holds records and answers similarity queries.
type VectorStore interface {
	Reset(ctx context.Context, dimension int) error
	Add(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Chatter sends a system and user message to a chat model and returns the reply.
type Chatter interface {
	Chat(ctx context.Context, model, system, user string) (string, error)
}

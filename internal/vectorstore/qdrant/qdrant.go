// Package qdrant mirrors the index into a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"pdfqa/internal/domain"
	"pdfqa/internal/vectorstore"
)

const upsertBatch = 256

// pointNamespace seeds deterministic point ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pdfqa/points"))

// Client is the subset of the Qdrant gRPC client the store uses.
type Client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	DeleteCollection(ctx context.Context, collectionName string) error
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// Storage recreates its collection on Reset and assumes cosine distance.
type Storage struct {
	client     Client
	collection string
	dimension  int
	added      int
	logger     *zap.Logger
}

// Dial connects to Qdrant.
func Dial(cfg Config, logger *zap.Logger) (*Storage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}
	return NewStorage(client, cfg.Collection, logger), nil
}

func NewStorage(client Client, collection string, logger *zap.Logger) *Storage {
	if collection == "" {
		collection = vectorstore.Collection
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{client: client, collection: collection, logger: logger}
}

// Reset drops and recreates the collection.
func (s *Storage) Reset(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.collection, err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("deleting collection %s: %w", s.collection, err)
		}
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	s.dimension = dimension
	s.added = 0
	s.logger.Info("recreated qdrant collection", zap.String("collection", s.collection), zap.Int("dimension", dimension))
	return nil
}

// Add upserts records in batches, continuing the order of earlier calls.
func (s *Storage) Add(ctx context.Context, records []domain.Record) error {
	if s.dimension == 0 {
		return errors.New("qdrant storage not initialized")
	}
	if err := vectorstore.CheckDimension(records, s.dimension); err != nil {
		return err
	}
	for start := 0; start < len(records); start += upsertBatch {
		end := min(start+upsertBatch, len(records))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i, r := range records[start:end] {
			order := s.added + start + i
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(PointID(r.Chunk.ChunkID, order)),
				Vectors: qdrant.NewVectors(r.Vector...),
				Payload: payload(r, order),
			})
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("upserting points: %w", err)
		}
	}
	s.added += len(records)
	return nil
}

// Search returns up to topK results ranked by score, earliest order on ties.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.collection, err)
	}
	out := make([]domain.SearchResult, 0, len(points))
	for _, p := range points {
		md := make(map[string]string, len(p.GetPayload()))
		for k, v := range p.GetPayload() {
			md[k] = v.GetStringValue()
		}
		ch, summary, order, err := vectorstore.FromMetadata(md, md[vectorstore.KeyText])
		if err != nil {
			return nil, err
		}
		out = append(out, domain.SearchResult{Chunk: ch, Summary: summary, Score: float64(p.GetScore()), Order: order})
	}
	vectorstore.Rank(out)
	return out, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(n), nil
}

func (s *Storage) Close() error { return s.client.Close() }

// PointID derives a stable UUID for a record.
func PointID(chunkID string, order int) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID+"#"+strconv.Itoa(order))).String()
}

func payload(r domain.Record, order int) map[string]*qdrant.Value {
	md := vectorstore.Metadata(r, order)
	md[vectorstore.KeyText] = r.Chunk.Text
	out := make(map[string]*qdrant.Value, len(md))
	for k, v := range md {
		out[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	return out
}

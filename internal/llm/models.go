package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ModelLister reports the models installed on the chat server.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// TagsClient lists Ollama models through GET /api/tags.
type TagsClient struct {
	baseURL string
	client  *http.Client
}

func NewTagsClient(baseURL string) *TagsClient {
	return &TagsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *TagsClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing models: %s", resp.Status)
	}
	var out struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		names = append(names, name)
	}
	return names, nil
}

// Selector picks the first tuned model the server has, else the fallback.
type Selector struct {
	lister   ModelLister
	tuned    []string
	fallback string
	logger   *zap.Logger
}

// NewSelector takes tuned candidates in order of preference. Empty names are
// ignored.
func NewSelector(lister ModelLister, tuned []string, fallback string, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	var candidates []string
	for _, name := range tuned {
		if name != "" {
			candidates = append(candidates, name)
		}
	}
	return &Selector{lister: lister, tuned: candidates, fallback: fallback, logger: logger}
}

// Select never fails: a listing error falls back with a warning.
func (s *Selector) Select(ctx context.Context) string {
	if len(s.tuned) == 0 || s.lister == nil {
		return s.fallback
	}
	names, err := s.lister.ListModels(ctx)
	if err != nil {
		s.logger.Warn("could not list models, using fallback", zap.String("model", s.fallback), zap.Error(err))
		return s.fallback
	}
	for _, want := range s.tuned {
		for _, name := range names {
			if sameModel(name, want) {
				return want
			}
		}
	}
	return s.fallback
}

// sameModel compares names treating a missing tag as ":latest".
func sameModel(a, b string) bool {
	return withTag(a) == withTag(b)
}

func withTag(name string) string {
	if strings.Contains(name, ":") {
		return name
	}
	return name + ":latest"
}

// Package openai is an OpenAI-compatible embeddings client. It also understands
// the Ollama-native response shape.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"pdfqa/internal/embedding"
)

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int
	batchSize  int
	prompt     bool

	mu        sync.RWMutex
	dimension int
}

// Config configures the OpenAI-compatible embeddings client. LegacyPrompt
// also sends single inputs as "prompt" for Ollama's /api/embeddings endpoint.
type Config struct {
	BaseURL      string
	APIKeyEnv    string
	Model        string
	Timeout      time.Duration
	BatchSize    int
	LegacyPrompt bool
}

// NewClient creates a new embeddings client. An unset API key is allowed for
// local servers that do not authenticate.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 64
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		model:      cfg.Model,
		client:     &http.Client{Timeout: t},
		maxRetries: 5,
		batchSize:  batch,
		prompt:     cfg.LegacyPrompt,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension is known after the first successful call.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Close is a no-op.
func (c *Client) Close() error { return nil }

// EmbedDocuments embeds texts in batches, preserving order.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", embedding.ErrEmptyInput)
	}
	out := make([][]float32, 0, len(texts))
	for _, batch := range embedding.Batches(texts, c.batchSize) {
		vecs, err := c.embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery returns an embedding vector for the given text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", embedding.ErrEmptyInput)
	}
	vecs, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type reqBody struct {
	Input  any    `json:"input"`
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model"`
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body := reqBody{Input: texts, Model: c.model}
	if len(texts) == 1 {
		body.Input = texts[0]
		if c.prompt {
			// Ollama's legacy endpoint reads "prompt" and returns a single vector.
			body.Prompt = texts[0]
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := c.baseURL + "/embeddings"

	var lastErr error
	var wait time.Duration
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			d := retryDelay(attempt - 1)
			if wait > 0 {
				d, wait = wait, 0
			}
			if err := sleep(ctx, d); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("openai embeddings failed: %s", resp.Status)
			// Respect Retry-After if provided
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				wait = time.Duration(secs) * time.Second
			}
			continue
		}

		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%w: %s", embedding.ErrEmbeddingFailed, resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		vecs, err := decode(payload, len(texts))
		if err != nil {
			lastErr = err
			continue
		}
		for _, v := range vecs {
			embedding.Normalize(v)
		}
		c.mu.Lock()
		if c.dimension == 0 {
			c.dimension = len(vecs[0])
		}
		c.mu.Unlock()
		return vecs, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no embedding returned")
	}
	return nil, fmt.Errorf("%w: %v", embedding.ErrEmbeddingFailed, lastErr)
}

// decode accepts the OpenAI list shape and the Ollama single-vector shape.
func decode(payload []byte, want int) ([][]float32, error) {
	// Try OpenAI-compatible response first
	var openaiOut struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) == want {
		out := make([][]float32, want)
		for i, d := range openaiOut.Data {
			idx := d.Index
			if idx < 0 || idx >= want || out[idx] != nil {
				idx = i
			}
			out[idx] = d.Embedding
		}
		if complete(out) {
			return out, nil
		}
	}
	// Fallback to Ollama-native shape: { "embedding": [...] }
	if want == 1 {
		var ollamaOut struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 {
			return [][]float32{ollamaOut.Embedding}, nil
		}
	}
	return nil, fmt.Errorf("no embedding returned for %d inputs", want)
}

func complete(vecs [][]float32) bool {
	for _, v := range vecs {
		if len(v) == 0 {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

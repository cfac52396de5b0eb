// Package llm answers questions through a local Ollama server.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("empty response from model")

// OllamaChatter sends chat requests through langchaingo's Ollama client.
type OllamaChatter struct {
	llm *ollama.LLM
}

// NewOllamaChatter builds a chatter for the server at baseURL. The model is
// chosen per call; deadlines come from the caller's context.
func NewOllamaChatter(baseURL, defaultModel string) (*OllamaChatter, error) {
	l, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(defaultModel),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	return &OllamaChatter{llm: l}, nil
}

// Chat sends a system and a user message and returns the reply text.
func (c *OllamaChatter) Chat(ctx context.Context, model, system, user string) (string, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}
	resp, err := c.llm.GenerateContent(ctx, msgs, llms.WithModel(model))
	if err != nil {
		return "", fmt.Errorf("chat with %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// Package llm abstracts the two external model capabilities the query
// engine depends on: chat completion (with optional token streaming) and
// text embedding.
//
// Implementations must be safe for concurrent use and must propagate
// context cancellation promptly; channels returned by ChatStream are
// closed by the implementation when the stream ends or the context is
// cancelled.
package llm

import (
	"context"
	"fmt"
)

// Provider is the interface for model interactions.
type Provider interface {
	// Chat sends a chat completion request and waits for the full response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream sends a chat completion request and returns a channel of
	// incremental chunks. Callers must drain the channel. Errors that
	// occur after the stream starts are surfaced as a final chunk with
	// FinishReason "error"; the error return covers only failures that
	// prevent the stream from starting.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)

	// Embed generates embeddings for a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// ResponseFormat can be set to "json_object" where the prompt
	// demands structured output.
	ResponseFormat string `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// StreamChunk is a single fragment emitted by a streaming completion.
// FinishReason is empty for intermediate chunks; "stop", "length", or
// "error" on the final one. For "error" chunks, Text carries the message.
type StreamChunk struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Config configures an LLM provider endpoint.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // openai, ollama, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg)
	case "ollama":
		return NewOllama(cfg), nil
	case "custom":
		return NewOpenAICompat(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

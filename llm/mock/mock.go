// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/brunobiangulo/graphrag/llm"
)

// Provider is a scripted llm.Provider. Responses are produced by the
// configured funcs; call counts are tracked for assertions. The zero
// value answers every chat with an empty response and every embed with
// a zero vector of Dim (default 4).
type Provider struct {
	mu sync.Mutex

	// ChatFunc, when set, produces the response for Chat and ChatStream.
	// The call index (0-based, chat calls only) is passed alongside the
	// request.
	ChatFunc func(call int, req llm.ChatRequest) (string, error)

	// EmbedFunc, when set, produces embeddings. Defaults to zero vectors.
	EmbedFunc func(texts []string) ([][]float32, error)

	// Dim is the dimension of default embeddings.
	Dim int

	chatCalls  int
	embedCalls int
	requests   []llm.ChatRequest
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	content, err := p.record(req)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{
		Content:          content,
		Model:            "mock",
		FinishReason:     "stop",
		PromptTokens:     len(strings.Fields(messagesText(req))),
		CompletionTokens: len(strings.Fields(content)),
	}, nil
}

// ChatStream splits the scripted response on whitespace and emits one
// chunk per word, preserving token ordering for streaming tests.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	content, err := p.record(req)
	if err != nil {
		return nil, err
	}

	words := strings.SplitAfter(content, " ")
	ch := make(chan llm.StreamChunk, len(words)+1)
	go func() {
		defer close(ch)
		for _, w := range words {
			select {
			case ch <- llm.StreamChunk{Text: w}:
			case <-ctx.Done():
				return
			}
		}
		ch <- llm.StreamChunk{FinishReason: "stop"}
	}()
	return ch, nil
}

func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.embedCalls++
	fn := p.EmbedFunc
	dim := p.Dim
	p.mu.Unlock()

	if fn != nil {
		return fn(texts)
	}
	if dim <= 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dim)
	}
	return out, nil
}

func (p *Provider) record(req llm.ChatRequest) (string, error) {
	p.mu.Lock()
	call := p.chatCalls
	p.chatCalls++
	p.requests = append(p.requests, req)
	fn := p.ChatFunc
	p.mu.Unlock()

	if fn == nil {
		return "", nil
	}
	return fn(call, req)
}

// ChatCalls returns the number of chat and stream calls made so far.
func (p *Provider) ChatCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chatCalls
}

// EmbedCalls returns the number of embed calls made so far.
func (p *Provider) EmbedCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.embedCalls
}

// Requests returns a copy of all chat requests seen, in order.
func (p *Provider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Scripted returns a provider that replies with the given responses in
// order and fails if called more times than responses were scripted.
func Scripted(responses ...string) *Provider {
	return &Provider{
		ChatFunc: func(call int, _ llm.ChatRequest) (string, error) {
			if call >= len(responses) {
				return "", fmt.Errorf("mock: unexpected chat call %d", call)
			}
			return responses[call], nil
		},
	}
}

func messagesText(req llm.ChatRequest) string {
	var b strings.Builder
	for _, m := range req.Messages {
		b.WriteString(m.Content)
		b.WriteString(" ")
	}
	return b.String()
}

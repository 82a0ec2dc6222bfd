// Package search implements the three query strategies over a loaded
// knowledge graph: local (entity-centered, single model call), global
// (map/reduce over community reports), and drift (iterative tree-structured
// refinement).
package search

import (
	"github.com/brunobiangulo/graphrag/model"
)

// Method selects a search strategy.
type Method string

const (
	MethodLocal  Method = "local"
	MethodGlobal Method = "global"
	MethodDrift  Method = "drift"
)

// Error kinds attached to degraded results. The engine returns these in
// SearchResult.ErrKind instead of failing the query where the failure is
// recoverable.
const (
	ErrKindLLM   = "llm_error"
	ErrKindParse = "parse_error"
)

// Query is one search request.
type Query struct {
	// Text is the user question, sent verbatim to the model. Prior user
	// turns influence retrieval only.
	Text string

	// History is the prior conversation, consumed immutably.
	History *model.ConversationHistory

	// DriftQuery, when non-empty, is the original top-level question of a
	// drift session; local search threads it into the system prompt so a
	// sub-question stays anchored to the big question.
	DriftQuery string
}

// SearchResult is the uniform response of every strategy.
type SearchResult struct {
	// Response is the final answer text. For drift it is the serialized
	// query state. Empty on degraded results; see ErrKind.
	Response string `json:"response"`

	// ContextRecords maps section name (lowercased: reports, entities,
	// relationships, claims, sources) to the rows that entered the prompt.
	ContextRecords map[string][]map[string]string `json:"context_records"`

	// ContextText is the exact prompt context fed to the model, for audit.
	ContextText string `json:"context_text"`

	// CompletionTime is the wall time of the whole search in seconds.
	CompletionTime float64 `json:"completion_time_seconds"`

	LLMCalls     int `json:"llm_calls"`
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`

	// Per-phase breakdowns keyed by phase name (response, map, reduce,
	// primer, step-N).
	LLMCallsByPhase     map[string]int `json:"llm_calls_by_phase,omitempty"`
	PromptTokensByPhase map[string]int `json:"prompt_tokens_by_phase,omitempty"`
	OutputTokensByPhase map[string]int `json:"output_tokens_by_phase,omitempty"`

	// ErrKind carries the error kind when the query degraded instead of
	// failing (llm_error, parse_error). Empty on success.
	ErrKind string `json:"err_kind,omitempty"`

	// Citations maps citation kind to the distinct ids the response
	// references. Filled by the orchestrator after the search returns.
	Citations map[string][]string `json:"citations,omitempty"`
}

// StreamEvent is one element of a streaming search. The event order is
// fixed: exactly one EventContext, then zero or more EventToken in model
// order, then exactly one EventDone.
type StreamEvent struct {
	Type EventType

	// ContextRecords and ContextText are set on EventContext.
	ContextRecords map[string][]map[string]string
	ContextText    string

	// Token is set on EventToken.
	Token string

	// Result is set on EventDone. Response is left empty; tokens were
	// already streamed and are not buffered.
	Result *SearchResult
}

// EventType discriminates StreamEvent payloads.
type EventType string

const (
	EventContext EventType = "context"
	EventToken   EventType = "token"
	EventDone    EventType = "done"
)

// accounting accumulates per-phase model usage for one query.
type accounting struct {
	calls  map[string]int
	prompt map[string]int
	output map[string]int
}

func newAccounting() *accounting {
	return &accounting{
		calls:  make(map[string]int),
		prompt: make(map[string]int),
		output: make(map[string]int),
	}
}

func (a *accounting) add(phase string, calls, prompt, output int) {
	a.calls[phase] += calls
	a.prompt[phase] += prompt
	a.output[phase] += output
}

func (a *accounting) merge(other *accounting) {
	for k, v := range other.calls {
		a.calls[k] += v
	}
	for k, v := range other.prompt {
		a.prompt[k] += v
	}
	for k, v := range other.output {
		a.output[k] += v
	}
}

// fill writes totals and breakdowns into r.
func (a *accounting) fill(r *SearchResult) {
	for _, v := range a.calls {
		r.LLMCalls += v
	}
	for _, v := range a.prompt {
		r.PromptTokens += v
	}
	for _, v := range a.output {
		r.OutputTokens += v
	}
	r.LLMCallsByPhase = a.calls
	r.PromptTokensByPhase = a.prompt
	r.OutputTokensByPhase = a.output
}

package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/brunobiangulo/graphrag/llm"
	"github.com/brunobiangulo/graphrag/llm/mock"
	"github.com/brunobiangulo/graphrag/model"
	"github.com/brunobiangulo/graphrag/vectorstore"
)

// wordCounter makes token costs predictable in tests.
type wordCounter struct{}

func (wordCounter) Count(s string) int { return len(strings.Fields(s)) }

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// singleEntityGraph is the minimal index: Alice, one edge to Bob, one
// text unit citing both.
func singleEntityGraph(t *testing.T) (*model.Graph, vectorstore.Store) {
	t.Helper()
	g, err := model.NewGraph(model.Input{
		Entities: []*model.Entity{
			{ID: "e1", ShortID: "1", Title: "Alice", Description: "person", Rank: 1,
				DescriptionEmbedding: []float32{1, 0},
				TextUnitIDs:          []string{"t1"}},
		},
		Relationships: []*model.Relationship{
			{ID: "r1", ShortID: "1", Source: "Alice", Target: "Bob",
				Description: "knows", Weight: 0.5, TextUnitIDs: []string{"t1"}},
		},
		TextUnits: []*model.TextUnit{
			{ID: "t1", ShortID: "1", Text: "Alice knows Bob."},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	store := vectorstore.NewMemory(2)
	if err := store.Add(context.Background(), "e1", []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	return g, store
}

func localTestConfig() LocalConfig {
	cfg := DefaultLocalConfig()
	cfg.MaxContextTokens = 1000
	cfg.CommunityProp = 0
	cfg.TextUnitProp = 0.3
	return cfg
}

func TestLocalSearchSingleEntity(t *testing.T) {
	g, store := singleEntityGraph(t)
	provider := mock.Scripted("Alice is a person [Data: Entities (1)].")
	provider.Dim = 2
	provider.EmbedFunc = func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	s := NewLocal(g, store, provider, wordCounter{}, localTestConfig(), discardLogger())
	res, err := s.Search(context.Background(), Query{Text: "Who is Alice?"})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.ContextRecords["entities"]) != 1 {
		t.Errorf("entities rows = %d, want 1", len(res.ContextRecords["entities"]))
	}
	if len(res.ContextRecords["relationships"]) != 1 {
		t.Errorf("relationships rows = %d, want 1", len(res.ContextRecords["relationships"]))
	}
	if len(res.ContextRecords["sources"]) != 1 {
		t.Errorf("sources rows = %d, want 1", len(res.ContextRecords["sources"]))
	}
	if !strings.Contains(res.Response, "[Data: Entities (1)]") {
		t.Errorf("response = %q, want the echoed citation", res.Response)
	}
	if res.LLMCalls != 1 {
		t.Errorf("llm_calls = %d, want 1", res.LLMCalls)
	}

	// The user message is the original query, not the history-expanded one.
	reqs := provider.Requests()
	if got := reqs[0].Messages[1].Content; got != "Who is Alice?" {
		t.Errorf("user message = %q, want the original query", got)
	}
	if !strings.Contains(reqs[0].Messages[0].Content, "-----Entities-----") {
		t.Error("system prompt missing the entities table")
	}
}

// Under budget pressure only the entities section survives, holding a
// prefix of the mapped entity list.
func TestLocalSearchBudgetPressure(t *testing.T) {
	var entities []*model.Entity
	store := vectorstore.NewMemory(2)
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("e%02d", i)
		entities = append(entities, &model.Entity{
			ID: id, ShortID: fmt.Sprintf("%d", i),
			Title:                fmt.Sprintf("Entity%02d", i),
			Description:          "filler description",
			Rank:                 50 - i,
			DescriptionEmbedding: []float32{1, float32(i) / 50},
			TextUnitIDs:          []string{"t1"},
		})
	}
	g, err := model.NewGraph(model.Input{
		Entities:  entities,
		TextUnits: []*model.TextUnit{{ID: "t1", ShortID: "1", Text: "shared text"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entities {
		if err := store.Add(context.Background(), e.ID, e.DescriptionEmbedding); err != nil {
			t.Fatal(err)
		}
	}

	provider := mock.Scripted("answer")
	provider.EmbedFunc = func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	cfg := DefaultLocalConfig()
	cfg.MaxContextTokens = 20
	cfg.CommunityProp = 0
	cfg.TextUnitProp = 0
	cfg.TopKEntities = 25

	s := NewLocal(g, store, provider, wordCounter{}, cfg, discardLogger())
	res, err := s.Search(context.Background(), Query{Text: "overview"})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(res.ContextText, "-----Entities-----") {
		t.Fatal("entities section missing")
	}
	if strings.Contains(res.ContextText, "-----Sources-----") ||
		strings.Contains(res.ContextText, "-----Reports-----") {
		t.Errorf("unexpected section in context: %q", res.ContextText)
	}

	rows := res.ContextRecords["entities"]
	if len(rows) == 0 || len(rows) >= 25 {
		t.Fatalf("entities rows = %d, want a strict prefix", len(rows))
	}
}

func TestLocalSearchEmptyGraph(t *testing.T) {
	g, err := model.NewGraph(model.Input{})
	if err != nil {
		t.Fatal(err)
	}
	provider := &mock.Provider{Dim: 2}
	s := NewLocal(g, vectorstore.NewMemory(2), provider, wordCounter{}, localTestConfig(), discardLogger())

	res, err := s.Search(context.Background(), Query{Text: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Response != "" || res.ContextText != "" {
		t.Errorf("response %q context %q, want both empty", res.Response, res.ContextText)
	}
	if provider.ChatCalls() != 0 {
		t.Errorf("chat calls = %d, want 0", provider.ChatCalls())
	}
}

// A failed model call degrades: context survives, response stays empty,
// and the error kind is recorded instead of returned.
func TestLocalSearchLLMFailure(t *testing.T) {
	g, store := singleEntityGraph(t)
	provider := &mock.Provider{
		ChatFunc: func(int, llm.ChatRequest) (string, error) {
			return "", fmt.Errorf("model unavailable")
		},
		EmbedFunc: func(texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
	}

	s := NewLocal(g, store, provider, wordCounter{}, localTestConfig(), discardLogger())
	res, err := s.Search(context.Background(), Query{Text: "Who is Alice?"})
	if err != nil {
		t.Fatalf("degraded call returned error: %v", err)
	}
	if res.ErrKind != ErrKindLLM {
		t.Errorf("err kind = %q, want %q", res.ErrKind, ErrKindLLM)
	}
	if res.Response != "" {
		t.Errorf("response = %q, want empty", res.Response)
	}
	if res.ContextText == "" {
		t.Error("context lost on degraded call")
	}
}

// Streaming yields the context payload exactly once, strictly before the
// first token, and a final done event.
func TestLocalSearchStreamOrder(t *testing.T) {
	g, store := singleEntityGraph(t)
	provider := mock.Scripted("streamed answer here")
	provider.EmbedFunc = func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	s := NewLocal(g, store, provider, wordCounter{}, localTestConfig(), discardLogger())
	events, err := s.SearchStream(context.Background(), Query{Text: "Who is Alice?"})
	if err != nil {
		t.Fatal(err)
	}

	var seen []EventType
	var streamed strings.Builder
	for ev := range events {
		seen = append(seen, ev.Type)
		if ev.Type == EventToken {
			streamed.WriteString(ev.Token)
		}
	}

	if len(seen) < 3 {
		t.Fatalf("events = %v, want context, tokens, done", seen)
	}
	if seen[0] != EventContext {
		t.Errorf("first event = %s, want context", seen[0])
	}
	if seen[len(seen)-1] != EventDone {
		t.Errorf("last event = %s, want done", seen[len(seen)-1])
	}
	contexts := 0
	for _, e := range seen {
		if e == EventContext {
			contexts++
		}
	}
	if contexts != 1 {
		t.Errorf("context events = %d, want exactly 1", contexts)
	}
	if streamed.String() != "streamed answer here" {
		t.Errorf("streamed text = %q", streamed.String())
	}
}

// The drift form threads the original question into the system prompt and
// demands JSON.
func TestLocalSearchDriftQuery(t *testing.T) {
	g, store := singleEntityGraph(t)
	provider := mock.Scripted(`{"response": "ok", "score": 50, "follow_up_queries": []}`)
	provider.EmbedFunc = func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	s := NewLocal(g, store, provider, wordCounter{}, localTestConfig(), discardLogger())
	_, err := s.Search(context.Background(), Query{
		Text:       "What does Alice do?",
		DriftQuery: "Tell me everything about this graph",
	})
	if err != nil {
		t.Fatal(err)
	}

	req := provider.Requests()[0]
	if !strings.Contains(req.Messages[0].Content, "Tell me everything about this graph") {
		t.Error("system prompt missing the drift anchor question")
	}
	if req.ResponseFormat != "json_object" {
		t.Errorf("response format = %q, want json_object", req.ResponseFormat)
	}
}

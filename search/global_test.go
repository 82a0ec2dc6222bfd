package search

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/brunobiangulo/graphrag/llm"
	"github.com/brunobiangulo/graphrag/llm/mock"
	"github.com/brunobiangulo/graphrag/model"
)

func reportsGraph(t *testing.T, n int) *model.Graph {
	t.Helper()
	var communities []*model.Community
	var reports []*model.CommunityReport
	for i := 0; i < n; i++ {
		cid := fmt.Sprintf("c%02d", i)
		communities = append(communities, &model.Community{ID: cid, Level: 0})
		reports = append(reports, &model.CommunityReport{
			ID:          fmt.Sprintf("rep%02d", i),
			ShortID:     fmt.Sprintf("%d", i),
			CommunityID: cid,
			Title:       fmt.Sprintf("Community %02d", i),
			FullContent: fmt.Sprintf("marker%02d content words", i),
			Rank:        float64(i % 10),
		})
	}
	g, err := model.NewGraph(model.Input{Communities: communities, Reports: reports})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func globalTestConfig() GlobalConfig {
	cfg := DefaultGlobalConfig()
	cfg.MaxDataTokens = 30
	cfg.ShuffleData = false
	cfg.IncludeCommunityWeight = false
	return cfg
}

// An empty graph issues no model call at all.
func TestGlobalSearchEmptyGraph(t *testing.T) {
	g := reportsGraph(t, 0)
	provider := &mock.Provider{}

	s := NewGlobal(g, provider, wordCounter{}, globalTestConfig(), discardLogger())
	res, err := s.Search(context.Background(), Query{Text: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if res.LLMCalls != 0 {
		t.Errorf("llm_calls = %d, want 0", res.LLMCalls)
	}
	if res.Response != "" || res.ContextText != "" {
		t.Errorf("response %q context %q, want both empty", res.Response, res.ContextText)
	}
	if provider.ChatCalls() != 0 {
		t.Errorf("chat calls = %d, want 0", provider.ChatCalls())
	}
}

func TestGlobalSearchMapReduce(t *testing.T) {
	g := reportsGraph(t, 8)

	provider := &mock.Provider{
		ChatFunc: func(_ int, req llm.ChatRequest) (string, error) {
			system := req.Messages[0].Content
			if strings.Contains(system, "-----Analyst") {
				// Reduce call.
				return "final synthesis [Data: Reports (0, 3)]", nil
			}
			// Map call: score points by which reports the batch holds.
			if strings.Contains(system, "marker00") {
				return `{"points": [{"description": "low point", "score": 10}, {"description": "zero point", "score": 0}]}`, nil
			}
			return `{"points": [{"description": "high point", "score": 90}]}`, nil
		},
	}

	s := NewGlobal(g, provider, wordCounter{}, globalTestConfig(), discardLogger())
	res, err := s.Search(context.Background(), Query{Text: "what are the themes?"})
	if err != nil {
		t.Fatal(err)
	}

	if res.Response != "final synthesis [Data: Reports (0, 3)]" {
		t.Errorf("response = %q", res.Response)
	}
	mapCalls := res.LLMCallsByPhase["map"]
	if mapCalls < 2 {
		t.Fatalf("map calls = %d, want at least 2 batches", mapCalls)
	}
	if res.LLMCallsByPhase["reduce"] != 1 {
		t.Errorf("reduce calls = %d, want 1", res.LLMCallsByPhase["reduce"])
	}
	if res.LLMCalls != mapCalls+1 {
		t.Errorf("llm_calls = %d, want map+reduce = %d", res.LLMCalls, mapCalls+1)
	}
	if res.ErrKind != "" {
		t.Errorf("err kind = %q, want none", res.ErrKind)
	}

	// The reduce prompt orders points by score descending and drops
	// score-0 points.
	var reducePrompt string
	for _, req := range provider.Requests() {
		if strings.Contains(req.Messages[0].Content, "-----Analyst") {
			reducePrompt = req.Messages[0].Content
		}
	}
	if reducePrompt == "" {
		t.Fatal("reduce prompt not found")
	}
	high := strings.Index(reducePrompt, "high point")
	low := strings.Index(reducePrompt, "low point")
	if high == -1 || low == -1 || high > low {
		t.Errorf("reduce prompt order wrong (high at %d, low at %d)", high, low)
	}
	if strings.Contains(reducePrompt, "zero point") {
		t.Error("score-0 point entered the reduce prompt")
	}
}

// A batch that fails to parse degrades to zero points and flags the
// result, without failing the query.
func TestGlobalSearchParseFailure(t *testing.T) {
	g := reportsGraph(t, 8)

	provider := &mock.Provider{
		ChatFunc: func(_ int, req llm.ChatRequest) (string, error) {
			system := req.Messages[0].Content
			if strings.Contains(system, "-----Analyst") {
				return "partial synthesis", nil
			}
			if strings.Contains(system, "marker00") {
				return "this is not json", nil
			}
			return `{"points": [{"description": "good point", "score": 40}]}`, nil
		},
	}

	s := NewGlobal(g, provider, wordCounter{}, globalTestConfig(), discardLogger())
	res, err := s.Search(context.Background(), Query{Text: "themes"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ErrKind != ErrKindParse {
		t.Errorf("err kind = %q, want %q", res.ErrKind, ErrKindParse)
	}
	if res.Response != "partial synthesis" {
		t.Errorf("response = %q, degraded query should still answer", res.Response)
	}
}

// With no scored points and general knowledge disallowed, the engine
// answers with the fixed refusal and skips the reduce call.
func TestGlobalSearchNoDataShortcut(t *testing.T) {
	g := reportsGraph(t, 4)

	provider := &mock.Provider{
		ChatFunc: func(_ int, req llm.ChatRequest) (string, error) {
			return `{"points": []}`, nil
		},
	}

	s := NewGlobal(g, provider, wordCounter{}, globalTestConfig(), discardLogger())
	res, err := s.Search(context.Background(), Query{Text: "themes"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Response != NoDataAnswer {
		t.Errorf("response = %q, want the fixed no-data answer", res.Response)
	}
	if res.LLMCallsByPhase["reduce"] != 0 {
		t.Errorf("reduce calls = %d, want 0", res.LLMCallsByPhase["reduce"])
	}
}

// The reduce prompt must be byte-identical regardless of map completion
// order.
func TestReduceContextOrderInvariance(t *testing.T) {
	s := NewGlobal(reportsGraph(t, 1), &mock.Provider{}, wordCounter{}, globalTestConfig(), discardLogger())

	points := []mapPoint{
		{Description: "alpha", Score: 80, batch: 0, index: 0},
		{Description: "beta", Score: 80, batch: 1, index: 0},
		{Description: "gamma", Score: 95, batch: 1, index: 1},
		{Description: "delta", Score: 10, batch: 0, index: 1},
		{Description: "dropped", Score: 0, batch: 0, index: 2},
	}

	want := s.reduceContext(points)
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 10; trial++ {
		shuffled := make([]mapPoint, len(points))
		copy(shuffled, points)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		if got := s.reduceContext(shuffled); got != want {
			t.Fatalf("reduce context differs under reordering:\n%q\nvs\n%q", got, want)
		}
	}

	// Highest score leads; equal scores resolve by batch then index.
	gamma := strings.Index(want, "gamma")
	alpha := strings.Index(want, "alpha")
	beta := strings.Index(want, "beta")
	if !(gamma < alpha && alpha < beta) {
		t.Errorf("order wrong: gamma=%d alpha=%d beta=%d", gamma, alpha, beta)
	}
	if strings.Contains(want, "dropped") {
		t.Error("score-0 point kept")
	}
}

// Identical inputs with shuffling disabled produce identical batches.
func TestGlobalBatchesDeterministic(t *testing.T) {
	g := reportsGraph(t, 10)
	cfg := globalTestConfig()
	cfg.ShuffleData = true // seeded, still deterministic

	s := NewGlobal(g, &mock.Provider{}, wordCounter{}, cfg, discardLogger())
	a := s.buildBatches()
	b := s.buildBatches()
	if len(a) != len(b) {
		t.Fatalf("batch counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Text != b[i].Text {
			t.Errorf("batch %d differs between runs", i)
		}
	}
}

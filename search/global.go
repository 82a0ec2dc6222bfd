package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/brunobiangulo/graphrag/contextpack"
	"github.com/brunobiangulo/graphrag/llm"
	"github.com/brunobiangulo/graphrag/model"
	"github.com/brunobiangulo/graphrag/retrieval"
	"github.com/brunobiangulo/graphrag/tokens"
)

// GlobalConfig tunes map/reduce search over community reports.
type GlobalConfig struct {
	// MaxDataTokens bounds each map batch and the reduce context.
	MaxDataTokens int `json:"max_data_tokens" yaml:"max_data_tokens"`

	// ShuffleData randomizes report order across map batches, seeded for
	// reproducibility.
	ShuffleData bool  `json:"shuffle_data" yaml:"shuffle_data"`
	RandomSeed  int64 `json:"random_seed" yaml:"random_seed"`

	// ConcurrentCoroutines bounds concurrent map calls.
	ConcurrentCoroutines int `json:"concurrent_coroutines" yaml:"concurrent_coroutines"`

	// AllowGeneralKnowledge permits claims beyond the report data. When
	// false the model must refuse with NoDataAnswer on empty context.
	AllowGeneralKnowledge bool `json:"allow_general_knowledge" yaml:"allow_general_knowledge"`

	IncludeCommunityRank   bool `json:"include_community_rank" yaml:"include_community_rank"`
	IncludeCommunityWeight bool `json:"include_community_weight" yaml:"include_community_weight"`

	ResponseType string  `json:"response_type" yaml:"response_type"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`

	// MaxOutputTokens caps the reduce completion.
	MaxOutputTokens int `json:"llm_max_tokens" yaml:"llm_max_tokens"`
}

// DefaultGlobalConfig returns the standard global search tuning.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		MaxDataTokens:          12000,
		ShuffleData:            true,
		RandomSeed:             86,
		ConcurrentCoroutines:   32,
		IncludeCommunityRank:   false,
		IncludeCommunityWeight: true,
		ResponseType:           "multiple paragraphs",
	}
}

// GlobalSearch answers dataset-wide questions by mapping over batches of
// community reports and reducing the scored points into one response.
type GlobalSearch struct {
	graph    *model.Graph
	provider llm.Provider
	counter  tokens.Counter
	packer   *contextpack.Packer
	cfg      GlobalConfig
	log      *slog.Logger
}

// NewGlobal creates a global search over the graph.
func NewGlobal(g *model.Graph, provider llm.Provider, counter tokens.Counter, cfg GlobalConfig, log *slog.Logger) *GlobalSearch {
	return &GlobalSearch{
		graph:    g,
		provider: provider,
		counter:  counter,
		packer:   contextpack.NewPacker(counter),
		cfg:      cfg,
		log:      log,
	}
}

// mapPoint is one scored key point from a map batch. Batch and Index
// record its origin for deterministic reduce ordering.
type mapPoint struct {
	Description string `json:"description"`
	Score       int    `json:"score"`

	batch int
	index int
}

type mapResponse struct {
	Points []mapPoint `json:"points"`
}

// Search runs the full map/reduce pipeline and waits for the answer.
// With zero community reports no model call is made and the result is
// empty.
func (s *GlobalSearch) Search(ctx context.Context, q Query) (*SearchResult, error) {
	start := time.Now()

	res := &SearchResult{ContextRecords: make(map[string][]map[string]string)}
	acct := newAccounting()

	batches := s.buildBatches()
	if len(batches) == 0 {
		acct.fill(res)
		res.CompletionTime = time.Since(start).Seconds()
		return res, nil
	}
	var texts []string
	for _, b := range batches {
		res.ContextRecords["reports"] = append(res.ContextRecords["reports"], b.Records()...)
		texts = append(texts, b.Text)
	}
	res.ContextText = strings.Join(texts, "\n\n")

	points, degraded, err := s.mapPhase(ctx, q, batches, acct)
	if err != nil {
		return nil, err
	}
	if degraded {
		res.ErrKind = ErrKindParse
	}

	reduceContext := s.reduceContext(points)
	if reduceContext == "" && !s.cfg.AllowGeneralKnowledge {
		res.Response = NoDataAnswer
		acct.fill(res)
		res.CompletionTime = time.Since(start).Seconds()
		return res, nil
	}

	resp, err := s.provider.Chat(ctx, s.reduceRequest(q, reduceContext))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("global search: reduce call failed", "error", err)
		acct.add("reduce", 1, 0, 0)
		res.ErrKind = ErrKindLLM
	} else {
		res.Response = resp.Content
		acct.add("reduce", 1, resp.PromptTokens, resp.CompletionTokens)
	}

	acct.fill(res)
	res.CompletionTime = time.Since(start).Seconds()
	s.log.Info("global search complete",
		"batches", len(batches),
		"points", len(points),
		"llm_calls", res.LLMCalls,
		"elapsed", time.Since(start),
	)
	return res, nil
}

// SearchStream runs the map phase to completion, then streams the reduce
// response. Event order matches LocalSearch.SearchStream.
func (s *GlobalSearch) SearchStream(ctx context.Context, q Query) (<-chan StreamEvent, error) {
	start := time.Now()

	res := &SearchResult{ContextRecords: make(map[string][]map[string]string)}
	acct := newAccounting()

	batches := s.buildBatches()
	var texts []string
	for _, b := range batches {
		res.ContextRecords["reports"] = append(res.ContextRecords["reports"], b.Records()...)
		texts = append(texts, b.Text)
	}
	res.ContextText = strings.Join(texts, "\n\n")

	ch := make(chan StreamEvent, 32)
	go func() {
		defer close(ch)

		done := func() {
			acct.fill(res)
			res.CompletionTime = time.Since(start).Seconds()
			select {
			case ch <- StreamEvent{Type: EventDone, Result: res}:
			case <-ctx.Done():
			}
		}

		select {
		case ch <- StreamEvent{Type: EventContext, ContextRecords: res.ContextRecords, ContextText: res.ContextText}:
		case <-ctx.Done():
			return
		}

		if len(batches) == 0 {
			done()
			return
		}

		points, degraded, err := s.mapPhase(ctx, q, batches, acct)
		if err != nil {
			return
		}
		if degraded {
			res.ErrKind = ErrKindParse
		}

		reduceContext := s.reduceContext(points)
		if reduceContext == "" && !s.cfg.AllowGeneralKnowledge {
			for _, tok := range strings.SplitAfter(NoDataAnswer, " ") {
				select {
				case ch <- StreamEvent{Type: EventToken, Token: tok}:
				case <-ctx.Done():
					return
				}
			}
			done()
			return
		}

		req := s.reduceRequest(q, reduceContext)
		stream, err := s.provider.ChatStream(ctx, req)
		if err != nil {
			s.log.Warn("global search: reduce stream start failed", "error", err)
			acct.add("reduce", 1, 0, 0)
			res.ErrKind = ErrKindLLM
			done()
			return
		}

		promptTokens := s.counter.Count(req.Messages[0].Content) + s.counter.Count(req.Messages[1].Content)
		outputTokens := 0
		for chunk := range stream {
			if chunk.FinishReason == "error" {
				s.log.Warn("global search: reduce stream failed", "error", chunk.Text)
				res.ErrKind = ErrKindLLM
				break
			}
			if chunk.Text == "" {
				continue
			}
			outputTokens += s.counter.Count(chunk.Text)
			select {
			case ch <- StreamEvent{Type: EventToken, Token: chunk.Text}:
			case <-ctx.Done():
				return
			}
		}
		acct.add("reduce", 1, promptTokens, outputTokens)
		done()
	}()

	return ch, nil
}

// buildBatches packs all in-scope community reports into map batches. The
// shuffle order is seeded, so identical inputs produce identical batches.
func (s *GlobalSearch) buildBatches() []contextpack.Packed {
	reports := s.graph.ReportsInScope()
	if len(reports) == 0 {
		return nil
	}

	ordered := make([]*model.CommunityReport, len(reports))
	copy(ordered, reports)
	if s.cfg.ShuffleData {
		rng := rand.New(rand.NewSource(s.cfg.RandomSeed))
		rng.Shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
	}

	opts := contextpack.ReportOptions{
		IncludeWeight:   s.cfg.IncludeCommunityWeight,
		NormalizeWeight: true,
		IncludeRank:     s.cfg.IncludeCommunityRank,
	}
	if opts.IncludeWeight {
		opts.Weights = retrieval.CommunityWeights(s.graph, ordered, s.graph.Entities())
	}

	return s.packer.PackBatched(contextpack.ReportTable(ordered, opts), s.cfg.MaxDataTokens)
}

// mapPhase fans the query out over the batches, bounded by the semaphore.
// A batch whose model call or JSON parse fails degrades to zero points;
// the bool return reports whether any batch failed to parse.
func (s *GlobalSearch) mapPhase(ctx context.Context, q Query, batches []contextpack.Packed, acct *accounting) ([]mapPoint, bool, error) {
	limit := int64(s.cfg.ConcurrentCoroutines)
	if limit <= 0 {
		limit = 32
	}
	sem := semaphore.NewWeighted(limit)

	results := make([][]mapPoint, len(batches))
	accts := make([]*accounting, len(batches))
	failures := make([]bool, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			a := newAccounting()
			accts[i] = a

			req := llm.ChatRequest{
				Messages: []llm.Message{
					{Role: "system", Content: fmt.Sprintf(mapSystemPrompt, batch.Text)},
					{Role: "user", Content: q.Text},
				},
				Temperature:    s.cfg.Temperature,
				ResponseFormat: "json_object",
			}
			resp, err := s.provider.Chat(gctx, req)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn("global search: map call failed", "batch", i, "error", err)
				a.add("map", 1, 0, 0)
				return nil
			}
			a.add("map", 1, resp.PromptTokens, resp.CompletionTokens)

			var parsed mapResponse
			if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
				s.log.Warn("global search: malformed map response", "batch", i, "error", err)
				failures[i] = true
				return nil
			}
			for j := range parsed.Points {
				parsed.Points[j].batch = i
				parsed.Points[j].index = j
			}
			results[i] = parsed.Points
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	degraded := false
	var points []mapPoint
	for i := range batches {
		if accts[i] != nil {
			acct.merge(accts[i])
		}
		if failures[i] {
			degraded = true
		}
		points = append(points, results[i]...)
	}
	return points, degraded, nil
}

// reduceContext flattens the map points into ranked analyst blocks under
// the data budget. The sort key is (score desc, batch asc, index asc), so
// the reduce prompt is byte-identical regardless of map scheduling.
func (s *GlobalSearch) reduceContext(points []mapPoint) string {
	kept := points[:0:0]
	for _, p := range points {
		if p.Score > 0 {
			kept = append(kept, p)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		if kept[i].batch != kept[j].batch {
			return kept[i].batch < kept[j].batch
		}
		return kept[i].index < kept[j].index
	})

	var b strings.Builder
	used := 0
	for _, p := range kept {
		block := fmt.Sprintf("-----Analyst %d-----\nHelpfulness Score: %d\n%s\n",
			p.batch+1, p.Score, p.Description)
		cost := s.counter.Count(block)
		if used+cost > s.cfg.MaxDataTokens {
			break
		}
		used += cost
		b.WriteString(block)
	}
	return b.String()
}

func (s *GlobalSearch) reduceRequest(q Query, reduceContext string) llm.ChatRequest {
	system := fmt.Sprintf(reduceSystemPrompt, reduceContext, s.cfg.ResponseType)
	if !s.cfg.AllowGeneralKnowledge {
		system += reduceNoKnowledgeAddendum
	}
	return llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: q.Text},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxOutputTokens,
	}
}

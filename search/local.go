package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/graphrag/contextpack"
	"github.com/brunobiangulo/graphrag/llm"
	"github.com/brunobiangulo/graphrag/model"
	"github.com/brunobiangulo/graphrag/retrieval"
	"github.com/brunobiangulo/graphrag/tokens"
	"github.com/brunobiangulo/graphrag/vectorstore"
)

// LocalConfig tunes entity-centered search.
type LocalConfig struct {
	// MaxContextTokens is the total context budget across all sections.
	MaxContextTokens int `json:"max_tokens" yaml:"max_tokens"`

	// CommunityProp is the fraction of the budget given to community
	// reports. CommunityProp + TextUnitProp must not exceed 1; the
	// remainder goes to entities, relationships and claims.
	CommunityProp float64 `json:"community_prop" yaml:"community_prop"`

	// TextUnitProp is the fraction of the budget given to source text.
	TextUnitProp float64 `json:"text_unit_prop" yaml:"text_unit_prop"`

	// TopKEntities bounds semantic entity mapping.
	TopKEntities int `json:"top_k_mapped_entities" yaml:"top_k_mapped_entities"`

	// TopKRelationships bounds out-network expansion per selected entity.
	TopKRelationships int `json:"top_k_relationships" yaml:"top_k_relationships"`

	// HistoryMaxTurns bounds how many prior user turns inform retrieval.
	HistoryMaxTurns int `json:"conversation_history_max_turns" yaml:"conversation_history_max_turns"`

	IncludeCommunityRank     bool `json:"include_community_rank" yaml:"include_community_rank"`
	IncludeCommunityWeight   bool `json:"include_community_weight" yaml:"include_community_weight"`
	NormalizeCommunityWeight bool `json:"normalize_community_weight" yaml:"normalize_community_weight"`

	// ResponseType describes the desired answer shape to the model.
	ResponseType string `json:"response_type" yaml:"response_type"`

	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxOutputTokens caps the model completion. Zero means provider default.
	MaxOutputTokens int `json:"llm_max_tokens" yaml:"llm_max_tokens"`
}

// DefaultLocalConfig returns the standard local search tuning.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		MaxContextTokens:         12000,
		CommunityProp:            0.25,
		TextUnitProp:             0.5,
		TopKEntities:             10,
		TopKRelationships:        10,
		HistoryMaxTurns:          5,
		IncludeCommunityRank:     false,
		IncludeCommunityWeight:   true,
		NormalizeCommunityWeight: true,
		ResponseType:             "multiple paragraphs",
	}
}

// LocalSearch answers a query from the neighborhood of its semantically
// matched entities, in a single model call.
type LocalSearch struct {
	graph    *model.Graph
	entities vectorstore.Store
	provider llm.Provider
	counter  tokens.Counter
	packer   *contextpack.Packer
	cfg      LocalConfig
	log      *slog.Logger
}

// NewLocal creates a local search over the graph. The store must hold the
// entity description collection.
func NewLocal(g *model.Graph, entities vectorstore.Store, provider llm.Provider, counter tokens.Counter, cfg LocalConfig, log *slog.Logger) *LocalSearch {
	return &LocalSearch{
		graph:    g,
		entities: entities,
		provider: provider,
		counter:  counter,
		packer:   contextpack.NewPacker(counter),
		cfg:      cfg,
		log:      log,
	}
}

// Search runs the query and waits for the full model response.
//
// A model failure does not fail the query: the result carries the built
// context, an empty response, and ErrKindLLM. Context-building failures
// and cancellation are returned as errors.
func (s *LocalSearch) Search(ctx context.Context, q Query) (*SearchResult, error) {
	start := time.Now()

	bc, err := s.buildContext(ctx, q)
	if err != nil {
		return nil, err
	}

	res := &SearchResult{ContextRecords: bc.records, ContextText: bc.text}
	acct := newAccounting()

	// Nothing retrieved, nothing to ground an answer in.
	if bc.text == "" {
		acct.fill(res)
		res.CompletionTime = time.Since(start).Seconds()
		return res, nil
	}

	resp, err := s.provider.Chat(ctx, s.chatRequest(q, bc.text))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("local search: model call failed", "error", err)
		acct.add("response", 1, 0, 0)
		res.ErrKind = ErrKindLLM
	} else {
		res.Response = resp.Content
		acct.add("response", 1, resp.PromptTokens, resp.CompletionTokens)
	}

	acct.fill(res)
	res.CompletionTime = time.Since(start).Seconds()
	s.log.Info("local search complete",
		"entities", len(bc.records["entities"]),
		"llm_calls", res.LLMCalls,
		"elapsed", time.Since(start),
	)
	return res, nil
}

// SearchStream runs the query with a token-streamed response. The channel
// yields one EventContext, then EventToken values in model order, then one
// EventDone; the full response is never buffered.
func (s *LocalSearch) SearchStream(ctx context.Context, q Query) (<-chan StreamEvent, error) {
	start := time.Now()

	bc, err := s.buildContext(ctx, q)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 32)
	go func() {
		defer close(ch)

		res := &SearchResult{ContextRecords: bc.records, ContextText: bc.text}
		acct := newAccounting()
		done := func() {
			acct.fill(res)
			res.CompletionTime = time.Since(start).Seconds()
			select {
			case ch <- StreamEvent{Type: EventDone, Result: res}:
			case <-ctx.Done():
			}
		}

		select {
		case ch <- StreamEvent{Type: EventContext, ContextRecords: bc.records, ContextText: bc.text}:
		case <-ctx.Done():
			return
		}

		if bc.text == "" {
			done()
			return
		}

		req := s.chatRequest(q, bc.text)
		stream, err := s.provider.ChatStream(ctx, req)
		if err != nil {
			s.log.Warn("local search: stream start failed", "error", err)
			acct.add("response", 1, 0, 0)
			res.ErrKind = ErrKindLLM
			done()
			return
		}

		promptTokens := s.counter.Count(req.Messages[0].Content) + s.counter.Count(req.Messages[1].Content)
		outputTokens := 0
		for chunk := range stream {
			if chunk.FinishReason == "error" {
				s.log.Warn("local search: stream failed", "error", chunk.Text)
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
		acct.add("response", 1, promptTokens, outputTokens)
		done()
	}()

	return ch, nil
}

func (s *LocalSearch) chatRequest(q Query, contextText string) llm.ChatRequest {
	var system string
	format := ""
	if q.DriftQuery != "" {
		system = fmt.Sprintf(driftLocalSystemPrompt, contextText, q.DriftQuery)
		format = "json_object"
	} else {
		system = fmt.Sprintf(localSystemPrompt, s.cfg.ResponseType, contextText)
	}
	return llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: q.Text},
		},
		Temperature:    s.cfg.Temperature,
		MaxTokens:      s.cfg.MaxOutputTokens,
		ResponseFormat: format,
	}
}

// builtContext is the packed prompt context plus its row records.
type builtContext struct {
	text     string
	records  map[string][]map[string]string
	selected []*model.Entity
}

// buildContext assembles the three context sections under the budget
// split. All work here is CPU-only except the single query embedding.
func (s *LocalSearch) buildContext(ctx context.Context, q Query) (*builtContext, error) {
	// Prior user turns sharpen retrieval; the model still sees only the
	// original question.
	semanticQuery := q.Text
	if turns := q.History.UserTurns(s.cfg.HistoryMaxTurns); len(turns) > 0 {
		semanticQuery = strings.Join(append(turns, q.Text), "\n")
	}

	selected, err := retrieval.MapQueryToEntities(ctx, s.graph, s.entities, s.provider,
		semanticQuery, s.cfg.TopKEntities, retrieval.MapOptions{})
	if err != nil {
		return nil, fmt.Errorf("building local context: %w", err)
	}

	bc := &builtContext{
		records:  make(map[string][]map[string]string),
		selected: selected,
	}
	if len(selected) == 0 {
		return bc, nil
	}

	communityBudget := int(float64(s.cfg.MaxContextTokens) * s.cfg.CommunityProp)
	textUnitBudget := int(float64(s.cfg.MaxContextTokens) * s.cfg.TextUnitProp)
	localBudget := s.cfg.MaxContextTokens - communityBudget - textUnitBudget

	var blocks []string

	if block := s.communityBlock(selected, communityBudget, bc.records); block != "" {
		blocks = append(blocks, block)
	}
	if block := s.localBlock(selected, localBudget, bc.records); block != "" {
		blocks = append(blocks, block)
	}
	if block := s.textUnitBlock(selected, textUnitBudget, bc.records); block != "" {
		blocks = append(blocks, block)
	}

	bc.text = strings.Join(blocks, "\n\n")
	return bc, nil
}

func (s *LocalSearch) communityBlock(selected []*model.Entity, budget int, records map[string][]map[string]string) string {
	if budget <= 0 {
		return ""
	}
	matched := retrieval.CommunitiesFor(s.graph, selected)
	if len(matched) == 0 {
		return ""
	}

	reports := make([]*model.CommunityReport, len(matched))
	for i, m := range matched {
		reports[i] = m.Report
	}

	opts := contextpack.ReportOptions{
		IncludeWeight:   s.cfg.IncludeCommunityWeight,
		NormalizeWeight: s.cfg.NormalizeCommunityWeight,
		IncludeRank:     s.cfg.IncludeCommunityRank,
	}
	if opts.IncludeWeight {
		opts.Weights = retrieval.CommunityWeights(s.graph, reports, s.graph.Entities())
	}

	packed := s.packer.Pack(contextpack.ReportTable(reports, opts), budget)
	records["reports"] = packed.Records()
	return packed.Text
}

// localBlock builds the entity, relationship and claim tables under one
// shared budget. Relationship and claim rows are committed entity by
// entity: each selected entity's rows are appended tentatively and kept
// only if the whole block still fits.
func (s *LocalSearch) localBlock(selected []*model.Entity, budget int, records map[string][]map[string]string) string {
	if budget <= 0 {
		return ""
	}

	entPacked := s.packer.Pack(contextpack.EntityTable(selected), budget)
	records["entities"] = entPacked.Records()

	inRels := retrieval.InNetworkRelationships(s.graph, selected)
	retrieval.RankRelationships(s.graph, inRels, "rank")
	outRels := retrieval.RankOutNetwork(s.graph, selected,
		retrieval.OutNetworkRelationships(s.graph, selected), "rank", s.cfg.TopKRelationships)
	ordered := append(inRels, outRels...)

	var rels []*model.Relationship
	var covs []*model.Covariate
	added := make(map[string]bool)

	render := func(rels []*model.Relationship, covs []*model.Covariate) (string, contextpack.Packed, contextpack.Packed) {
		parts := []string{entPacked.Text}
		var relPacked, covPacked contextpack.Packed
		if len(rels) > 0 {
			relPacked = s.packer.Pack(contextpack.RelationshipTable(rels), budget)
			parts = append(parts, relPacked.Text)
		}
		if len(covs) > 0 {
			covPacked = s.packer.Pack(contextpack.ClaimTable(covs), budget)
			parts = append(parts, covPacked.Text)
		}
		return strings.Join(parts, "\n"), relPacked, covPacked
	}

	text := entPacked.Text
	var relPacked, covPacked contextpack.Packed
	for _, e := range selected {
		candRels := rels[:len(rels):len(rels)]
		for _, r := range ordered {
			if added[r.ID] || (r.Source != e.Title && r.Target != e.Title) {
				continue
			}
			candRels = append(candRels, r)
		}
		candCovs := append(covs[:len(covs):len(covs)], s.graph.CovariatesForSubject(e.Title)...)

		candidate, candRelPacked, candCovPacked := render(candRels, candCovs)
		if s.counter.Count(candidate) > budget {
			break
		}
		for _, r := range candRels[len(rels):] {
			added[r.ID] = true
		}
		rels, covs = candRels, candCovs
		text, relPacked, covPacked = candidate, candRelPacked, candCovPacked
	}

	if len(relPacked.Rows) > 0 {
		records["relationships"] = relPacked.Records()
	}
	if len(covPacked.Rows) > 0 {
		records["claims"] = covPacked.Records()
	}
	return text
}

func (s *LocalSearch) textUnitBlock(selected []*model.Entity, budget int, records map[string][]map[string]string) string {
	if budget <= 0 {
		return ""
	}
	units := retrieval.TextUnitsFor(s.graph, selected)
	if len(units) == 0 {
		return ""
	}
	packed := s.packer.Pack(contextpack.SourceTable(units), budget)
	records["sources"] = packed.Records()
	return packed.Text
}

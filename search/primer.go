package search

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/graphrag/llm"
	"github.com/brunobiangulo/graphrag/model"
	"github.com/brunobiangulo/graphrag/vectorstore"
)

// primerResult is the merged outcome of the primer decomposition: the
// seed answer for the drift session root. ErrKind marks a degraded
// primer whose model call failed.
type primerResult struct {
	IntermediateAnswer string
	Score              float64
	FollowUps          []string
	ErrKind            string
}

type foldResponse struct {
	IntermediateAnswer string   `json:"intermediate_answer"`
	Score              float64  `json:"score"`
	FollowUpQueries    []string `json:"follow_up_queries"`
}

// runPrimer expands the query hypothetically (HyDE), retrieves the most
// similar community reports, and decomposes the query against them in
// concurrent folds.
func (s *DRIFTSearch) runPrimer(ctx context.Context, query string, acct *accounting) (*primerResult, error) {
	reports := s.graph.ReportsInScope()
	if len(reports) == 0 {
		return &primerResult{}, nil
	}

	// HyDE: mirror the style of one sampled report.
	rng := rand.New(rand.NewSource(s.cfg.RandomSeed))
	sample := reports[rng.Intn(len(reports))]

	hydeReq := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(hydePrompt, sample.FullContent, query)},
		},
		Temperature: s.cfg.Temperature,
	}
	hydeResp, err := s.provider.Chat(ctx, hydeReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Degrade: the session ends with an unanswered root rather than
		// failing the query.
		s.log.Warn("drift primer: hypothetical expansion failed", "error", err)
		acct.add("primer", 1, 0, 0)
		return &primerResult{ErrKind: ErrKindLLM}, nil
	}
	acct.add("primer", 1, hydeResp.PromptTokens, hydeResp.CompletionTokens)

	hits, err := vectorstore.SimilarByText(ctx, s.reports, s.provider,
		hydeResp.Content, s.cfg.SearchPrimerK)
	if err != nil {
		return nil, fmt.Errorf("drift primer: report retrieval: %w", err)
	}

	var top []*model.CommunityReport
	byID := make(map[string]*model.CommunityReport, len(reports))
	for _, r := range reports {
		byID[r.ID] = r
	}
	for _, h := range hits {
		if r, ok := byID[h.ID]; ok {
			top = append(top, r)
		}
	}
	if len(top) == 0 {
		return &primerResult{}, nil
	}

	folds := s.splitFolds(top)
	results := make([]*foldResponse, len(folds))

	g, gctx := errgroup.WithContext(ctx)
	accts := make([]*accounting, len(folds))
	for i, fold := range folds {
		g.Go(func() error {
			a := newAccounting()
			accts[i] = a

			var b strings.Builder
			for _, r := range fold {
				b.WriteString(r.FullContent)
				b.WriteString("\n\n")
			}
			req := llm.ChatRequest{
				Messages: []llm.Message{
					{Role: "user", Content: fmt.Sprintf(primerDecomposePrompt, b.String(), query)},
				},
				Temperature:    s.cfg.Temperature,
				ResponseFormat: "json_object",
			}
			resp, err := s.provider.Chat(gctx, req)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn("drift primer: fold call failed", "fold", i, "error", err)
				a.add("primer", 1, 0, 0)
				return nil
			}
			a.add("primer", 1, resp.PromptTokens, resp.CompletionTokens)

			var parsed foldResponse
			if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
				s.log.Warn("drift primer: malformed fold response", "fold", i, "error", err)
				return nil
			}
			results[i] = &parsed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, a := range accts {
		if a != nil {
			acct.merge(a)
		}
	}

	// Merge folds: concatenate answers, union follow-ups, average scores.
	merged := &primerResult{}
	seen := make(map[string]bool)
	var answers []string
	scored := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.IntermediateAnswer != "" {
			answers = append(answers, r.IntermediateAnswer)
		}
		merged.Score += r.Score
		scored++
		for _, q := range r.FollowUpQueries {
			if q == "" || seen[q] {
				continue
			}
			seen[q] = true
			merged.FollowUps = append(merged.FollowUps, q)
		}
	}
	if scored > 0 {
		merged.Score /= float64(scored)
	}
	merged.IntermediateAnswer = strings.Join(answers, "\n\n")
	return merged, nil
}

// splitFolds partitions reports round-robin into at most PrimerFolds folds.
func (s *DRIFTSearch) splitFolds(reports []*model.CommunityReport) [][]*model.CommunityReport {
	n := s.cfg.PrimerFolds
	if n <= 0 {
		n = 1
	}
	if n > len(reports) {
		n = len(reports)
	}
	folds := make([][]*model.CommunityReport, n)
	for i, r := range reports {
		folds[i%n] = append(folds[i%n], r)
	}
	return folds
}

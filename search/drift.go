package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/graphrag/llm"
	"github.com/brunobiangulo/graphrag/model"
	"github.com/brunobiangulo/graphrag/vectorstore"
)

// DriftConfig tunes iterative tree-structured search.
type DriftConfig struct {
	// Iterations bounds the refinement loop.
	Iterations int `json:"n" yaml:"n"`

	// SearchPrimerK is both the primer's report count and the number of
	// incomplete actions expanded per iteration.
	SearchPrimerK int `json:"search_primer_k" yaml:"search_primer_k"`

	// PrimerFolds bounds concurrent primer decompositions.
	PrimerFolds int `json:"primer_folds" yaml:"primer_folds"`

	Temperature float64 `json:"temperature" yaml:"temperature"`
	RandomSeed  int64   `json:"random_seed" yaml:"random_seed"`
}

// DefaultDriftConfig returns the standard drift search tuning.
func DefaultDriftConfig() DriftConfig {
	return DriftConfig{
		Iterations:    3,
		SearchPrimerK: 3,
		PrimerFolds:   5,
		RandomSeed:    86,
	}
}

// DRIFTSearch answers open-ended questions by decomposing them into a
// growing tree of sub-questions, each resolved by a local search anchored
// to the original question.
type DRIFTSearch struct {
	graph    *model.Graph
	reports  vectorstore.Store
	local    *LocalSearch
	provider llm.Provider
	cfg      DriftConfig
	log      *slog.Logger
}

// NewDrift creates a drift search. The store must hold the community
// report full-content collection; local is reused for every refinement
// step.
func NewDrift(g *model.Graph, reports vectorstore.Store, local *LocalSearch, provider llm.Provider, cfg DriftConfig, log *slog.Logger) *DRIFTSearch {
	return &DRIFTSearch{
		graph:    g,
		reports:  reports,
		local:    local,
		provider: provider,
		cfg:      cfg,
		log:      log,
	}
}

// stepResponse is the JSON contract of one refinement step.
type stepResponse struct {
	Response        string   `json:"response"`
	Score           float64  `json:"score"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// Search runs the primer and the refinement loop, terminating at the
// iteration budget or when no incomplete actions remain. The response is
// the serialized session graph.
func (s *DRIFTSearch) Search(ctx context.Context, q Query) (*SearchResult, error) {
	start := time.Now()

	res := &SearchResult{ContextRecords: make(map[string][]map[string]string)}
	acct := newAccounting()

	state := NewQueryState()
	root := state.Add(q.Text, "")

	primer, err := s.runPrimer(ctx, q.Text, acct)
	if err != nil {
		return nil, err
	}
	res.ErrKind = primer.ErrKind

	if primer.IntermediateAnswer == "" && len(primer.FollowUps) == 0 {
		// Nothing to refine; an empty graph or a failed primer ends here.
		serialized, err := state.Serialize()
		if err != nil {
			return nil, err
		}
		res.Response = serialized
		acct.fill(res)
		res.CompletionTime = time.Since(start).Seconds()
		return res, nil
	}

	score := primer.Score
	state.CompleteAction(root.ID, primer.IntermediateAnswer, &score, primer.FollowUps)

	// Unscored actions draw one random key each, memoized so the sort
	// comparator stays consistent and the seed makes runs reproducible.
	rng := rand.New(rand.NewSource(s.cfg.RandomSeed))
	rankKeys := make(map[string]float64)
	rank := func(a *Action) float64 {
		if a.Score != nil {
			return *a.Score
		}
		key, ok := rankKeys[a.ID]
		if !ok {
			key = rng.Float64()
			rankKeys[a.ID] = key
		}
		return key
	}

	for iter := 1; iter <= s.cfg.Iterations; iter++ {
		pending := state.Incomplete(rank)
		if len(pending) == 0 {
			break
		}
		if len(pending) > s.cfg.SearchPrimerK {
			pending = pending[:s.cfg.SearchPrimerK]
		}

		phase := fmt.Sprintf("step-%d", iter)
		if err := s.runStep(ctx, q, pending, phase, state, res, acct); err != nil {
			return nil, err
		}
	}

	serialized, err := state.Serialize()
	if err != nil {
		return nil, err
	}
	res.Response = serialized

	acct.fill(res)
	res.CompletionTime = time.Since(start).Seconds()
	s.log.Info("drift search complete",
		"actions", state.Len(),
		"completed", state.CompleteCount(),
		"llm_calls", res.LLMCalls,
		"elapsed", time.Since(start),
	)
	return res, nil
}

// runStep expands one batch of actions concurrently via local search.
// A step whose model call or parse fails stays incomplete but does not
// fail the query.
func (s *DRIFTSearch) runStep(ctx context.Context, q Query, actions []*Action, phase string, state *QueryState, res *SearchResult, acct *accounting) error {
	accts := make([]*accounting, len(actions))
	contexts := make([]*SearchResult, len(actions))

	g, gctx := errgroup.WithContext(ctx)
	for i, action := range actions {
		g.Go(func() error {
			a := newAccounting()
			accts[i] = a

			sub, err := s.local.Search(gctx, Query{
				Text:       action.Query,
				History:    q.History,
				DriftQuery: q.Text,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn("drift step: local search failed",
					"query", action.Query, "error", err)
				return nil
			}
			contexts[i] = sub
			a.add(phase, sub.LLMCalls, sub.PromptTokens, sub.OutputTokens)

			if sub.ErrKind != "" || sub.Response == "" {
				return nil
			}

			var parsed stepResponse
			if err := json.Unmarshal([]byte(sub.Response), &parsed); err != nil {
				s.log.Warn("drift step: malformed step response",
					"query", action.Query, "error", err)
				return nil
			}
			if parsed.Response == "" {
				return nil
			}
			score := parsed.Score
			state.CompleteAction(action.ID, parsed.Response, &score, parsed.FollowUpQueries)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range actions {
		if accts[i] != nil {
			acct.merge(accts[i])
		}
		if contexts[i] != nil {
			res.ContextText += contexts[i].ContextText + "\n\n"
			for k, rows := range contexts[i].ContextRecords {
				res.ContextRecords[k] = append(res.ContextRecords[k], rows...)
			}
		}
	}
	return nil
}

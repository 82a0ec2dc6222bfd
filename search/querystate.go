package search

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Action is one node in a drift session: a question, and once executed,
// its answer, relevance score and suggested follow-ups.
type Action struct {
	ID        string         `json:"id"`
	Query     string         `json:"query"`
	Answer    string         `json:"answer,omitempty"`
	Score     *float64       `json:"score,omitempty"`
	FollowUps []string       `json:"follow_up_queries,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Complete reports whether the action has been answered.
func (a *Action) Complete() bool { return a.Answer != "" }

// QueryState is the directed multi-graph of a drift session. Nodes are
// actions; edges record which action's follow-up spawned which child.
// Methods are safe for concurrent use; refinement steps complete actions
// in parallel.
type QueryState struct {
	mu      sync.Mutex
	actions map[string]*Action
	order   []string
	edges   map[string][]string
}

// NewQueryState creates an empty session graph.
func NewQueryState() *QueryState {
	return &QueryState{
		actions: make(map[string]*Action),
		edges:   make(map[string][]string),
	}
}

// Add inserts a new action for the given query, optionally linked from a
// parent action, and returns it.
func (s *QueryState) Add(query string, parentID string) *Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := &Action{ID: uuid.NewString(), Query: query}
	s.actions[a.ID] = a
	s.order = append(s.order, a.ID)
	if parentID != "" {
		s.edges[parentID] = append(s.edges[parentID], a.ID)
	}
	return a
}

// CompleteAction records an answer on the action and spawns its follow-ups
// as child actions.
func (s *QueryState) CompleteAction(id, answer string, score *float64, followUps []string) {
	s.mu.Lock()
	a, ok := s.actions[id]
	if ok {
		a.Answer = answer
		a.Score = score
		a.FollowUps = followUps
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, q := range followUps {
		s.Add(q, id)
	}
}

// Incomplete returns the unanswered actions ordered by score descending;
// unscored actions rank according to rank(nil score), insertion order
// otherwise.
func (s *QueryState) Incomplete(rank func(*Action) float64) []*Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Action
	for _, id := range s.order {
		if a := s.actions[id]; !a.Complete() {
			out = append(out, a)
		}
	}
	if rank != nil {
		sort.SliceStable(out, func(i, j int) bool {
			return rank(out[i]) > rank(out[j])
		})
	}
	return out
}

// CompleteCount returns the number of answered actions.
func (s *QueryState) CompleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.actions {
		if a.Complete() {
			n++
		}
	}
	return n
}

// Len returns the total number of actions.
func (s *QueryState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// serializedState is the wire form of a session graph.
type serializedState struct {
	Nodes []*Action           `json:"nodes"`
	Edges map[string][]string `json:"edges,omitempty"`
}

// Serialize renders the session graph as JSON, nodes in insertion order.
func (s *QueryState) Serialize() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := serializedState{Edges: s.edges}
	for _, id := range s.order {
		out.Nodes = append(out.Nodes, s.actions[id])
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Package graphrag is a query engine over a pre-built knowledge graph
// index. It loads the tabular index artifacts into an immutable in-memory
// graph and answers questions with three strategies: local
// (entity-centered), global (map/reduce over community reports) and drift
// (iterative tree-structured refinement).
package graphrag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brunobiangulo/graphrag/llm"
	"github.com/brunobiangulo/graphrag/model"
	"github.com/brunobiangulo/graphrag/search"
	"github.com/brunobiangulo/graphrag/tokens"
	"github.com/brunobiangulo/graphrag/vectorstore"
)

// Stores bundles the embedding collections of one index. TextUnits is
// optional; no current strategy reads it, but backends populate it for
// external consumers.
type Stores struct {
	Entities  vectorstore.Store
	TextUnits vectorstore.Store
	Reports   vectorstore.Store
}

// Engine dispatches queries to the search strategies.
type Engine struct {
	cfg    Config
	graph  *model.Graph
	stores Stores

	chat  llm.Provider
	embed llm.Provider

	counter tokens.Counter
	local   *search.LocalSearch
	global  *search.GlobalSearch
	drift   *search.DRIFTSearch

	log *slog.Logger
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithChatProvider overrides the chat endpoint from Config.
func WithChatProvider(p llm.Provider) Option {
	return func(e *Engine) { e.chat = p }
}

// WithEmbedProvider overrides the embedding endpoint from Config. The
// provider is used as given; the retry wrapper is not applied.
func WithEmbedProvider(p llm.Provider) Option {
	return func(e *Engine) { e.embed = p }
}

// New creates an engine over a loaded graph and its embedding stores.
// Configuration violations and unknown encodings are fatal here.
func New(cfg Config, g *model.Graph, stores Stores, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: graph must not be nil", ErrBadData)
	}
	if stores.Entities == nil {
		return nil, fmt.Errorf("%w: entity vector store is required", ErrInvalidConfig)
	}

	e := &Engine{cfg: cfg, graph: g, stores: stores, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	if e.chat == nil {
		p, err := llm.NewProvider(cfg.Chat)
		if err != nil {
			return nil, fmt.Errorf("%w: chat endpoint: %v", ErrInvalidConfig, err)
		}
		e.chat = p
	}
	if e.embed == nil {
		p, err := llm.NewProvider(cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding endpoint: %v", ErrInvalidConfig, err)
		}
		e.embed = llm.WithEmbedRetry(p, cfg.EmbedMaxRetries)
	}

	counter, err := tokens.NewCounter(cfg.EncodingModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	e.counter = counter

	provider := &splitProvider{chat: e.chat, embed: e.embed}
	e.local = search.NewLocal(g, stores.Entities, provider, counter, cfg.Local, e.log)
	e.global = search.NewGlobal(g, provider, counter, cfg.Global, e.log)
	e.drift = search.NewDrift(g, stores.Reports, e.local, provider, cfg.Drift, e.log)

	return e, nil
}

// Search runs one query with the given method and waits for the result.
// Method validation is strict; history is consumed immutably. Citations
// are extracted from the response for local and global; a drift response
// is the serialized session graph and carries none.
func (e *Engine) Search(ctx context.Context, method search.Method, q search.Query) (*search.SearchResult, error) {
	var (
		res *search.SearchResult
		err error
	)
	switch method {
	case search.MethodLocal:
		res, err = e.local.Search(ctx, q)
	case search.MethodGlobal:
		res, err = e.global.Search(ctx, q)
	case search.MethodDrift:
		res, err = e.drift.Search(ctx, q)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	if err != nil {
		return nil, err
	}
	if method != search.MethodDrift {
		res.Citations = ExtractCitations(res.Response)
	}
	return res, nil
}

// SearchStream runs one query with a token-streamed response. Only local
// and global support streaming.
func (e *Engine) SearchStream(ctx context.Context, method search.Method, q search.Query) (<-chan search.StreamEvent, error) {
	switch method {
	case search.MethodLocal:
		return e.local.SearchStream(ctx, q)
	case search.MethodGlobal:
		return e.global.SearchStream(ctx, q)
	case search.MethodDrift:
		return nil, fmt.Errorf("%w: drift", ErrStreamingUnsupported)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// Graph returns the engine's immutable graph.
func (e *Engine) Graph() *model.Graph { return e.graph }

// splitProvider routes chat traffic and embedding traffic to separate
// endpoints behind one llm.Provider.
type splitProvider struct {
	chat  llm.Provider
	embed llm.Provider
}

func (p *splitProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return p.chat.Chat(ctx, req)
}

func (p *splitProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return p.chat.ChatStream(ctx, req)
}

func (p *splitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed.Embed(ctx, texts)
}

// BuildMemoryStores builds deterministic in-memory stores from the
// embeddings carried by the graph itself: entity descriptions and report
// full contents. Records without an embedding are skipped. The text-unit
// store is left nil; the index artifacts carry no text-unit vectors.
func BuildMemoryStores(g *model.Graph) (Stores, error) {
	var stores Stores

	entityDim := 0
	for _, e := range g.Entities() {
		if len(e.DescriptionEmbedding) > 0 {
			entityDim = len(e.DescriptionEmbedding)
			break
		}
	}
	entities := vectorstore.NewMemory(entityDim)
	for _, e := range g.Entities() {
		if len(e.DescriptionEmbedding) == 0 {
			continue
		}
		if err := entities.Add(context.Background(), e.ID, e.DescriptionEmbedding); err != nil {
			return stores, fmt.Errorf("indexing entity %s: %w", e.ID, err)
		}
	}

	reportDim := 0
	for _, r := range g.ReportsInScope() {
		if len(r.FullContentEmbedding) > 0 {
			reportDim = len(r.FullContentEmbedding)
			break
		}
	}
	reports := vectorstore.NewMemory(reportDim)
	for _, r := range g.ReportsInScope() {
		if len(r.FullContentEmbedding) == 0 {
			continue
		}
		if err := reports.Add(context.Background(), r.ID, r.FullContentEmbedding); err != nil {
			return stores, fmt.Errorf("indexing report %s: %w", r.ID, err)
		}
	}

	stores.Entities = entities
	stores.Reports = reports
	return stores, nil
}

// PopulateStores writes the graph's embeddings into persistent backend
// collections at load time. Nil writers are skipped.
func PopulateStores(ctx context.Context, g *model.Graph, entities, reports vectorstore.Writer) error {
	if entities != nil {
		for _, e := range g.Entities() {
			if len(e.DescriptionEmbedding) == 0 {
				continue
			}
			if err := entities.Add(ctx, e.ID, e.DescriptionEmbedding); err != nil {
				return fmt.Errorf("writing entity %s: %w", e.ID, err)
			}
		}
	}
	if reports != nil {
		for _, r := range g.ReportsInScope() {
			if len(r.FullContentEmbedding) == 0 {
				continue
			}
			if err := reports.Add(ctx, r.ID, r.FullContentEmbedding); err != nil {
				return fmt.Errorf("writing report %s: %w", r.ID, err)
			}
		}
	}
	return nil
}

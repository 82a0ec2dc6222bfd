package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/graphrag"
	"github.com/brunobiangulo/graphrag/model"
	"github.com/brunobiangulo/graphrag/vectorstore/pgvector"
	"github.com/brunobiangulo/graphrag/vectorstore/sqlitevec"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	graphDir := flag.String("graph", "", "Path to the index artifact directory")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := graphrag.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = graphrag.LoadConfig(*configPath)
		if err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
	}

	// Override from environment variables.
	if v := os.Getenv("GRAPHRAG_CHAT_BASE_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("GRAPHRAG_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("GRAPHRAG_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("GRAPHRAG_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("GRAPHRAG_CHAT_PROVIDER"); v != "" {
		cfg.Chat.Provider = v
	}
	if v := os.Getenv("GRAPHRAG_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}

	// Fallback: the well-known provider env var.
	if cfg.Chat.APIKey == "" && cfg.Chat.Provider == "openai" {
		cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	apiKey := os.Getenv("GRAPHRAG_API_KEY")
	corsOrigins := os.Getenv("GRAPHRAG_CORS_ORIGINS")

	if *graphDir == "" {
		slog.Error("missing required -graph flag")
		os.Exit(1)
	}
	g, err := model.LoadGraph(*graphDir)
	if err != nil {
		slog.Error("loading graph", "dir", *graphDir, "error", err)
		os.Exit(1)
	}
	slog.Info("graph loaded",
		"entities", len(g.Entities()),
		"relationships", len(g.Relationships()),
		"reports", len(g.ReportsInScope()),
	)

	stores, cleanup, err := openStores(cfg, g)
	if err != nil {
		slog.Error("opening vector stores", "backend", cfg.VectorStore.Backend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := graphrag.New(cfg, g, stores)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}

	h := newHandler(engine)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /search", h.handleSearch)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// openStores builds the configured vector store backend and loads the
// graph's embeddings into it. The returned cleanup closes any database.
func openStores(cfg graphrag.Config, g *model.Graph) (graphrag.Stores, func(), error) {
	noop := func() {}

	switch cfg.VectorStore.Backend {
	case graphrag.BackendSQLiteVec:
		db, err := sqlitevec.Open(cfg.VectorStore.Path, cfg.VectorStore.Dim)
		if err != nil {
			return graphrag.Stores{}, noop, err
		}
		entities, err := db.Collection("entity_description")
		if err != nil {
			db.Close()
			return graphrag.Stores{}, noop, err
		}
		reports, err := db.Collection("community_full_content")
		if err != nil {
			db.Close()
			return graphrag.Stores{}, noop, err
		}
		if err := graphrag.PopulateStores(context.Background(), g, entities, reports); err != nil {
			db.Close()
			return graphrag.Stores{}, noop, err
		}
		return graphrag.Stores{Entities: entities, Reports: reports},
			func() { db.Close() }, nil

	case graphrag.BackendPgVector:
		ctx := context.Background()
		db, err := pgvector.Open(ctx, cfg.VectorStore.DSN, cfg.VectorStore.Dim)
		if err != nil {
			return graphrag.Stores{}, noop, err
		}
		entities, err := db.Collection(ctx, "entity_description")
		if err != nil {
			db.Close()
			return graphrag.Stores{}, noop, err
		}
		reports, err := db.Collection(ctx, "community_full_content")
		if err != nil {
			db.Close()
			return graphrag.Stores{}, noop, err
		}
		if err := graphrag.PopulateStores(ctx, g, entities, reports); err != nil {
			db.Close()
			return graphrag.Stores{}, noop, err
		}
		return graphrag.Stores{Entities: entities, Reports: reports},
			func() { db.Close() }, nil

	default:
		stores, err := graphrag.BuildMemoryStores(g)
		return stores, noop, err
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brunobiangulo/graphrag"
	"github.com/brunobiangulo/graphrag/model"
	"github.com/brunobiangulo/graphrag/search"
)

type handler struct {
	engine *graphrag.Engine
}

func newHandler(e *graphrag.Engine) *handler {
	return &handler{engine: e}
}

type searchRequest struct {
	Query   string       `json:"query"`
	Method  string       `json:"method,omitempty"` // local (default), global, drift
	Stream  bool         `json:"stream,omitempty"`
	History []model.Turn `json:"history,omitempty"`
}

// POST /search
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Method == "" {
		req.Method = string(search.MethodLocal)
	}

	q := search.Query{
		Text:    req.Query,
		History: model.NewConversationHistory(req.History),
	}

	if req.Stream {
		h.streamSearch(ctx, w, search.Method(req.Method), q)
		return
	}

	res, err := h.engine.Search(ctx, search.Method(req.Method), q)
	if err != nil {
		status := http.StatusInternalServerError
		if err == context.Canceled || err == context.DeadlineExceeded {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, "search failed")
		slog.Error("search error", "method", req.Method, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// streamSearch relays the search event stream as server-sent events:
// one "context" event, then "token" events, then "done".
func (h *handler) streamSearch(ctx context.Context, w http.ResponseWriter, method search.Method, q search.Query) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported by connection")
		return
	}

	events, err := h.engine.SearchStream(ctx, method, q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		var payload any
		switch ev.Type {
		case search.EventContext:
			payload = map[string]any{
				"context_records": ev.ContextRecords,
				"context_text":    ev.ContextText,
			}
		case search.EventToken:
			payload = map[string]string{"token": ev.Token}
		case search.EventDone:
			payload = ev.Result
		}

		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("encoding stream event", "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

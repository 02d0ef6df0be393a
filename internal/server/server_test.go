package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kotaehq/kotae/internal/cache"
	"github.com/kotaehq/kotae/internal/chunker"
	"github.com/kotaehq/kotae/internal/config"
	"github.com/kotaehq/kotae/internal/models"
	"github.com/kotaehq/kotae/internal/provider"
	"github.com/kotaehq/kotae/internal/rag"
)

func testDocs() map[string]interface{} {
	return map[string]interface{}{
		"ai-data-manifest.json": map[string]interface{}{
			"files": map[string]interface{}{
				"about.json": map[string]interface{}{
					"summaryTemplate": "About: {name}",
					"alwaysInclude":   true,
				},
				"portfolio.json": map[string]interface{}{
					"itemArrayPath":       "projects",
					"itemSummaryTemplate": "Project: {title}",
				},
			},
			"retrievalRules": map[string]interface{}{"defaultTopK": 5},
			"systemPrompt":   map[string]interface{}{"role": "Assistant."},
		},
		"about.json": map[string]interface{}{"name": "Kotae"},
		"portfolio.json": map[string]interface{}{
			"projects": []interface{}{
				map[string]interface{}{"title": "Search Engine"},
			},
		},
	}
}

func newTestServer(t *testing.T, initialized bool) *Server {
	t.Helper()
	engine := rag.NewEngine(
		rag.Config{Retry: provider.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 2}},
		&provider.MockLoader{Docs: testDocs()},
		provider.NewMockEmbedder(32),
		&provider.MockGenerator{Response: "hello from the model"},
		cache.NewMemoryStore(),
	)
	if initialized {
		if _, err := engine.Initialize(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	cfg := &config.ServerConfig{Host: "localhost", Port: 8080}
	return NewServer(engine, chunker.New(), cfg, zap.NewNop())
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleChat(t *testing.T) {
	router := newTestServer(t, true).Router()
	minScore := -1.0

	rec := doJSON(t, router, http.MethodPost, "/api/v1/chat",
		ChatRequest{Query: "what have you built", MinScore: &minScore})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}

	var result models.ChatResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Answer != "hello from the model" {
		t.Errorf("answer: %q", result.Answer)
	}
	if len(result.Sources) == 0 {
		t.Error("expected sources")
	}
}

func TestHandleChat_EmptyQuery(t *testing.T) {
	router := newTestServer(t, true).Router()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/chat", ChatRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: %d", rec.Code)
	}
}

func TestHandleChat_InvalidBody(t *testing.T) {
	router := newTestServer(t, true).Router()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: %d", rec.Code)
	}
}

func TestHandleChat_NotInitialized(t *testing.T) {
	router := newTestServer(t, false).Router()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/chat", ChatRequest{Query: "q"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: %d", rec.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	router := newTestServer(t, true).Router()
	minScore := -1.0

	rec := doJSON(t, router, http.MethodPost, "/api/v1/search",
		SearchRequest{Query: "search engine", MinScore: &minScore})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Query   string                 `json:"query"`
		Results []*models.ScoredRecord `json:"results"`
		Count   int                    `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Query != "search engine" {
		t.Errorf("query echo: %q", resp.Query)
	}
	if resp.Count != len(resp.Results) || resp.Count == 0 {
		t.Errorf("count %d, results %d", resp.Count, len(resp.Results))
	}
}

func TestHandleGetSource(t *testing.T) {
	router := newTestServer(t, true).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources/about.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}

	var details models.SourceDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &details); err != nil {
		t.Fatal(err)
	}
	if details.ID != "about.json" || details.FullData == nil {
		t.Errorf("details: %+v", details)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sources/ghost", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown source status: %d", rec.Code)
	}
}

func TestHandleChunks(t *testing.T) {
	router := newTestServer(t, true).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chunks/portfolio.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		File   string           `json:"file"`
		Chunks []*chunker.Chunk `json:"chunks"`
		Count  int              `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.File != "portfolio.json" || resp.Count == 0 {
		t.Errorf("response: file=%q count=%d", resp.File, resp.Count)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/chunks/ghost.json", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown file status: %d", rec.Code)
	}
}

func TestHandleCacheEndpoints(t *testing.T) {
	router := newTestServer(t, true).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status: %d", rec.Code)
	}
	var stats rag.CacheStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Version != rag.CacheVersion {
		t.Errorf("version: %q", stats.Version)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/cache/embeddings", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("clear embeddings status: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("clear status: %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	router := newTestServer(t, true).Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if body := rec.Body.String(); body == "" {
		t.Error("empty health body")
	}
}

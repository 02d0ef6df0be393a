package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kotaehq/kotae/internal/rag"
)

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Query    string   `json:"query"`
	TopK     int      `json:"topK,omitempty"`
	MinScore *float64 `json:"minScore,omitempty"`
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query         string   `json:"query"`
	TopK          int      `json:"topK,omitempty"`
	MinScore      *float64 `json:"minScore,omitempty"`
	IncludeAlways *bool    `json:"includeAlways,omitempty"`
	Rerank        *bool    `json:"rerank,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("chat request", zap.String("query", req.Query))

	result, err := s.engine.Chat(r.Context(), req.Query, rag.SearchOptions{
		TopK:     req.TopK,
		MinScore: req.MinScore,
	})
	if err != nil {
		switch {
		case errors.Is(err, rag.ErrBusy):
			s.respondError(w, http.StatusConflict, "a chat request is already in progress")
		case errors.Is(err, rag.ErrNotInitialized):
			s.respondError(w, http.StatusServiceUnavailable, "engine not initialized")
		default:
			s.logger.Error("chat failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("topK", req.TopK))

	results, err := s.engine.Search(r.Context(), req.Query, rag.SearchOptions{
		TopK:          req.TopK,
		MinScore:      req.MinScore,
		IncludeAlways: req.IncludeAlways,
		Rerank:        req.Rerank,
	})
	if err != nil {
		if errors.Is(err, rag.ErrNotInitialized) {
			s.respondError(w, http.StatusServiceUnavailable, "engine not initialized")
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	details, err := s.engine.FetchFullDetails(id)
	if err != nil {
		if errors.Is(err, rag.ErrSourceNotFound) {
			s.respondError(w, http.StatusNotFound, "source not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, details)
}

func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	chunks, err := s.engine.PreviewChunks(file, s.chunker)
	if err != nil {
		if errors.Is(err, rag.ErrSourceNotFound) {
			s.respondError(w, http.StatusNotFound, "file not found in manifest")
			return
		}
		s.logger.Error("chunk preview failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"file":   file,
		"chunks": chunks,
		"count":  len(chunks),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.CacheStats(r.Context())
	if err != nil {
		s.logger.Error("cache stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearCache(r.Context()); err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleClearEmbeddings(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearEmbeddingsCache(r.Context()); err != nil {
		s.logger.Error("embeddings cache clear failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

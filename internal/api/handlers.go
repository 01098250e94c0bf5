package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/research"
	"github.com/sells-group/deep-research/internal/store"
)

type researchRequest struct {
	Query  string   `json:"query"`
	Depth  string   `json:"depth"`
	Budget *float64 `json:"budget,omitempty"`
}

type researchAccepted struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Depth     string `json:"depth"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStartResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Depth == "" {
		req.Depth = string(model.DepthStandard)
	}
	depth, err := model.ParseDepth(req.Depth)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Runner.Validate(req.Query, depth); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Budget != nil && *req.Budget < 0 {
		respondError(w, http.StatusBadRequest, "budget must be >= 0")
		return
	}

	id := uuid.NewString()
	opts := []research.ExecuteOption{research.WithSessionID(id)}
	if req.Budget != nil {
		opts = append(opts, research.WithBudget(*req.Budget))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.deps.Runner.Execute(s.base, req.Query, depth, opts...)
		if err != nil {
			s.log.Error("research failed", zap.String("session_id", id), zap.Error(err))
			return
		}
		s.log.Info("research complete",
			zap.String("session_id", id),
			zap.String("document_id", res.DocumentID),
			zap.Float64("confidence", res.FinalConfidence),
		)
	}()

	respondJSON(w, http.StatusAccepted, researchAccepted{Status: "accepted", SessionID: id, Depth: string(depth)})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SessionFilter{
		Status: model.SessionStatus(q.Get("status")),
		Limit:  intParam(q.Get("limit"), 0),
		Offset: intParam(q.Get("offset"), 0),
	}
	sessions, err := s.deps.Store.ListSessions(r.Context(), filter)
	if err != nil {
		s.storeError(w, "list sessions", err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, "get session", err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.DocumentFilter{
		Status: model.DocumentStatus(q.Get("status")),
		Topic:  q.Get("topic"),
		Limit:  intParam(q.Get("limit"), 0),
		Offset: intParam(q.Get("offset"), 0),
	}
	docs, err := s.deps.Store.ListDocuments(r.Context(), filter)
	if err != nil {
		s.storeError(w, "list documents", err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, "get document", err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Store.GetDocument(r.Context(), id); err != nil {
		s.storeError(w, "get document", err)
		return
	}
	versions, err := s.deps.Store.ListVersions(r.Context(), id)
	if err != nil {
		s.storeError(w, "list versions", err)
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Keyword == nil {
		respondError(w, http.StatusNotImplemented, "keyword search not enabled")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	hits, err := s.deps.Keyword.Search(r.Context(), q, intParam(r.URL.Query().Get("limit"), 10))
	if err != nil {
		s.log.Error("keyword search failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	respondJSON(w, http.StatusOK, hits)
}

func (s *Server) handleGetPricing(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Pricing.Get())
}

func (s *Server) handleSetPricing(w http.ResponseWriter, r *http.Request) {
	var p cost.Pricing
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.TavilyPerSearch < 0 || p.LLMPer1KTokens < 0 {
		respondError(w, http.StatusBadRequest, "rates must be >= 0")
		return
	}
	s.deps.Pricing.Set(p)
	s.log.Info("pricing updated",
		zap.Float64("per_search", p.TavilyPerSearch),
		zap.Float64("per_1k_tokens", p.LLMPer1KTokens),
	)
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		respondError(w, http.StatusNotImplemented, "metrics not enabled")
		return
	}
	snap, err := s.deps.Metrics.Collect(r.Context(), intParam(r.URL.Query().Get("hours"), s.deps.Lookback))
	if err != nil {
		s.log.Error("collect metrics failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "metrics unavailable")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	s.log.Error(op+" failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, op+" failed")
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Package api exposes research sessions, the document library, pricing and
// health metrics over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deep-research/internal/config"
	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/monitoring"
	"github.com/sells-group/deep-research/internal/research"
	"github.com/sells-group/deep-research/internal/similarity"
	"github.com/sells-group/deep-research/internal/store"
)

// Runner executes research sessions. Validate rejects input Execute would
// refuse, so a request can fail before it is accepted.
type Runner interface {
	Validate(query string, depth model.Depth) error
	Execute(ctx context.Context, query string, depth model.Depth, opts ...research.ExecuteOption) (*model.ResearchResult, error)
}

// KeywordSearcher answers full-text document queries.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]similarity.Hit, error)
}

// MetricsCollector reports aggregate session health.
type MetricsCollector interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// Deps are the server's collaborators. Keyword and Metrics are optional.
type Deps struct {
	Runner   Runner
	Store    store.Store
	Keyword  KeywordSearcher
	Pricing  *cost.PricingSource
	Metrics  MetricsCollector
	Lookback int
}

// Server is the HTTP API.
type Server struct {
	deps Deps
	cfg  config.ServerConfig
	log  *zap.Logger

	// base outlives individual requests so background sessions keep
	// running after the 202 is written.
	base context.Context
	wg   sync.WaitGroup

	server *http.Server
}

// NewServer creates a server. Background research runs under base and is
// cancelled when base is.
func NewServer(base context.Context, deps Deps, cfg config.ServerConfig) *Server {
	return &Server{
		deps: deps,
		cfg:  cfg,
		log:  zap.L().Named("api"),
		base: base,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/research", s.handleStartResearch)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)

		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/search", s.handleSearchDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/documents/{id}/versions", s.handleListVersions)

		r.Get("/pricing", s.handleGetPricing)
		r.Put("/pricing", s.handleSetPricing)

		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down and waits for
// background sessions to finish.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("addr", addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- eris.Wrap(err, "api: listen")
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.Wait()
	return eris.Wrap(err, "api: shutdown")
}

// Wait blocks until every background session has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

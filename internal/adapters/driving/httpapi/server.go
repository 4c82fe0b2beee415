// Package httpapi exposes search and the admin operations over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
	"github.com/custodia-labs/wikiscope/internal/logger"
)

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("httpapi: search service is required")

// Services aggregates the driving ports served over HTTP.
// Tagging is optional; without it cluster tagging answers 503.
type Services struct {
	Search     driving.SearchService
	Pages      driving.PageService
	Embeddings driving.EmbeddingService
	Clusters   driving.ClusterService
	Tagging    driving.TaggingService
	Tags       driving.TagService

	// SearchDefaults fills options the caller leaves out.
	SearchDefaults domain.SearchSettings
}

// Server is the HTTP API.
type Server struct {
	svc    Services
	router chi.Router
}

// NewServer builds the router for the given services.
func NewServer(svc Services) (*Server, error) {
	if svc.Search == nil {
		return nil, ErrMissingSearchService
	}

	s := &Server{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.handleSearch)

		r.Route("/pages/{pageID}", func(r chi.Router) {
			r.Put("/", s.handlePutPage)
			r.Get("/", s.handleGetPage)
			r.Delete("/", s.handleDeletePage)
			r.Get("/tags", s.handlePageTags)
		})

		r.Get("/wikis/{wikiID}/clusters", s.handleListClusters)
		r.Get("/wikis/{wikiID}/tags", s.handleListTags)
		r.Post("/wikis/{wikiID}/tags", s.handleCreateTag)
		r.Post("/tags/{tagID}/verify", s.handleVerifyTag)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/pages/{pageID}/embed", s.handleEmbedPage)
			r.Post("/pages/{pageID}/retry", s.handleRetryPage)
			r.Post("/embeddings/pending", s.handleEmbedPending)
			r.Get("/embeddings", s.handleEmbeddingStatus)
			r.Post("/wikis/{wikiID}/embeddings/retry", s.handleRetryFailed)
			r.Post("/wikis/{wikiID}/clusters", s.handleRunClustering)
			r.Post("/clusters/{clusterID}/tags", s.handleTagCluster)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("HTTP API listening on %s", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

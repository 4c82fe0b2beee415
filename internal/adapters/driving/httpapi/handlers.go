package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/v1/search?q&wiki_id&limit&offset&threshold&semantic_weight&mode
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := searchOptions(s.svc.SearchDefaults, q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.svc.Search.Search(r.Context(), q.Get("q"), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// searchOptions starts from the configured defaults and applies any
// parameters present in the query string.
func searchOptions(defaults domain.SearchSettings, q map[string][]string) (domain.SearchOptions, error) {
	opts := defaults.Options()
	get := func(key string) string {
		if v := q[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	opts.WikiID = get("wiki_id")
	if mode := get("mode"); mode != "" {
		opts.Mode = domain.SearchMode(mode)
	}

	var err error
	if opts.Limit, err = intParam(get("limit"), opts.Limit, "limit"); err != nil {
		return opts, err
	}
	if opts.Offset, err = intParam(get("offset"), opts.Offset, "offset"); err != nil {
		return opts, err
	}
	if opts.Threshold, err = floatParam(get("threshold"), opts.Threshold, "threshold"); err != nil {
		return opts, err
	}
	if opts.SemanticWeight, err = floatParam(get("semantic_weight"), opts.SemanticWeight, "semantic_weight"); err != nil {
		return opts, err
	}
	return opts, nil
}

func intParam(raw string, fallback int, name string) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, name)
	}
	return v, nil
}

func floatParam(raw string, fallback float64, name string) (float64, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidInput, name)
	}
	return v, nil
}

type putPageRequest struct {
	WikiID  string `json:"wiki_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type putPageResponse struct {
	Page    *domain.Page `json:"page"`
	Changed bool         `json:"changed"`
}

// PUT /api/v1/pages/{pageID}
func (s *Server) handlePutPage(w http.ResponseWriter, r *http.Request) {
	var req putPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput))
		return
	}

	page, changed, err := s.svc.Pages.Put(r.Context(), domain.Page{
		ID:      chi.URLParam(r, "pageID"),
		WikiID:  req.WikiID,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, putPageResponse{Page: page, Changed: changed})
}

// GET /api/v1/pages/{pageID}
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Pages.Get(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// DELETE /api/v1/pages/{pageID}
func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Pages.Delete(r.Context(), chi.URLParam(r, "pageID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/pages/{pageID}/tags
func (s *Server) handlePageTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.svc.Tags.ListForPage(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tags))
}

// POST /api/v1/admin/pages/{pageID}/embed
func (s *Server) handleEmbedPage(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	if err := s.svc.Embeddings.EmbedPage(r.Context(), pageID); err != nil {
		writeError(w, r, err)
		return
	}
	s.writePageStatus(w, r, pageID)
}

// POST /api/v1/admin/pages/{pageID}/retry
func (s *Server) handleRetryPage(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	if err := s.svc.Embeddings.Retry(r.Context(), pageID); err != nil {
		writeError(w, r, err)
		return
	}
	s.writePageStatus(w, r, pageID)
}

type pageStatus struct {
	PageID string                 `json:"page_id"`
	Status domain.EmbeddingStatus `json:"status"`
	Error  string                 `json:"error,omitempty"`
}

func (s *Server) writePageStatus(w http.ResponseWriter, r *http.Request, pageID string) {
	page, err := s.svc.Pages.Get(r.Context(), pageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageStatus{
		PageID: page.ID,
		Status: page.EmbeddingStatus,
		Error:  page.EmbeddingError,
	})
}

// POST /api/v1/admin/embeddings/pending?limit
func (s *Server) handleEmbedPending(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 0, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	run, err := s.svc.Embeddings.EmbedPending(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type embeddingStatusResponse struct {
	Counts domain.StatusCounts `json:"counts"`
	Pages  []domain.Page       `json:"pages,omitempty"`
}

// GET /api/v1/admin/embeddings?status&wiki_id&limit
// Without status only the counts are returned.
func (s *Server) handleEmbeddingStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wikiID := q.Get("wiki_id")

	counts, err := s.svc.Embeddings.StatusCounts(r.Context(), wikiID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := embeddingStatusResponse{Counts: counts}

	if status := q.Get("status"); status != "" {
		limit, err := intParam(q.Get("limit"), 0, "limit")
		if err != nil {
			writeError(w, r, err)
			return
		}
		pages, err := s.svc.Embeddings.ListByStatus(r.Context(), domain.EmbeddingStatus(status), wikiID, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for i := range pages {
			pages[i].Content = ""
		}
		resp.Pages = nonNil(pages)
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/v1/admin/wikis/{wikiID}/embeddings/retry
func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Embeddings.RetryFailed(r.Context(), chi.URLParam(r, "wikiID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
}

type clusteringResponse struct {
	Run     *domain.ClusterRun `json:"run"`
	Tagging *domain.TagRun     `json:"tagging,omitempty"`
}

// POST /api/v1/admin/wikis/{wikiID}/clusters?tag=true
func (s *Server) handleRunClustering(w http.ResponseWriter, r *http.Request) {
	wikiID := chi.URLParam(r, "wikiID")
	tag, _ := strconv.ParseBool(r.URL.Query().Get("tag")) //nolint:errcheck // absent means false

	run, err := s.svc.Clusters.Run(r.Context(), wikiID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := clusteringResponse{Run: run}

	if tag {
		if s.svc.Tagging == nil {
			writeError(w, r, domain.ErrLLMUnavailable)
			return
		}
		tagRun, err := s.svc.Tagging.TagWiki(r.Context(), wikiID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Tagging = tagRun
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/wikis/{wikiID}/clusters
func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.svc.Clusters.List(r.Context(), chi.URLParam(r, "wikiID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(clusters))
}

// POST /api/v1/admin/clusters/{clusterID}/tags
func (s *Server) handleTagCluster(w http.ResponseWriter, r *http.Request) {
	if s.svc.Tagging == nil {
		writeError(w, r, domain.ErrLLMUnavailable)
		return
	}
	result, err := s.svc.Tagging.TagCluster(r.Context(), chi.URLParam(r, "clusterID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /api/v1/wikis/{wikiID}/tags
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.svc.Tags.List(r.Context(), chi.URLParam(r, "wikiID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tags))
}

type createTagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// POST /api/v1/wikis/{wikiID}/tags
func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput))
		return
	}
	tag, err := s.svc.Tags.Create(r.Context(), chi.URLParam(r, "wikiID"), req.Name, req.Color)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

// POST /api/v1/tags/{tagID}/verify
func (s *Server) handleVerifyTag(w http.ResponseWriter, r *http.Request) {
	tag, err := s.svc.Tags.Verify(r.Context(), chi.URLParam(r, "tagID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

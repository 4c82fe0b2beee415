package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query          string   `json:"query" jsonschema:"the search query"`
	WikiID         string   `json:"wiki_id,omitempty" jsonschema:"restrict results to one wiki"`
	Mode           string   `json:"mode,omitempty" jsonschema:"semantic, keyword or hybrid (default from settings)"`
	Limit          int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Offset         int      `json:"offset,omitempty" jsonschema:"number of results to skip"`
	Threshold      *float64 `json:"threshold,omitempty" jsonschema:"minimum semantic similarity in [0,1]"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty" jsonschema:"hybrid blend weight in [0,1]"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results  []domain.SearchResult `json:"results"`
	Count    int                   `json:"count"`
	Total    int                   `json:"total"`
	Mode     string                `json:"mode"`
	Degraded bool                  `json:"degraded"`
	Warnings []string              `json:"warnings,omitempty"`
}

// EmbeddingStatusInput is the input schema for the embedding_status tool.
type EmbeddingStatusInput struct {
	WikiID string `json:"wiki_id,omitempty" jsonschema:"restrict counts to one wiki"`
	Status string `json:"status,omitempty" jsonschema:"also list pages in this state: pending, processing, completed or failed"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum pages to list (default 100)"`
}

// PageStatusOutput is a page in an embedding status listing.
type PageStatusOutput struct {
	PageID string `json:"page_id"`
	WikiID string `json:"wiki_id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// EmbeddingStatusOutput is the output schema for the embedding_status tool.
type EmbeddingStatusOutput struct {
	Counts map[string]int     `json:"counts"`
	Pages  []PageStatusOutput `json:"pages,omitempty"`
}

// EmbedPendingInput is the input schema for the embed_pending tool.
type EmbedPendingInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum pages to embed in this call"`
}

// WikiInput names a wiki.
type WikiInput struct {
	WikiID string `json:"wiki_id" jsonschema:"the wiki to operate on"`
	Tag    bool   `json:"tag,omitempty" jsonschema:"also propose tags for the new clusters (run_clustering only)"`
}

// RunClusteringOutput is the output schema for the run_clustering tool.
type RunClusteringOutput struct {
	WikiID      string          `json:"wiki_id"`
	Generation  int64           `json:"generation"`
	Pages       int             `json:"pages"`
	Clusters    []ClusterOutput `json:"clusters"`
	CarriedTags int             `json:"carried_tags"`
	Tagging     *domain.TagRun  `json:"tagging,omitempty"`
}

// ClusterOutput summarises a cluster.
type ClusterOutput struct {
	ID              string   `json:"id"`
	Generation      int64    `json:"generation"`
	Size            int      `json:"size"`
	Representatives []string `json:"representatives"`
	Tags            []string `json:"tags,omitempty"`
}

// ListClustersOutput is the output schema for the list_clusters tool.
type ListClustersOutput struct {
	Clusters []ClusterOutput `json:"clusters"`
	Count    int             `json:"count"`
}

// TagClusterInput is the input schema for the tag_cluster tool.
type TagClusterInput struct {
	ClusterID string `json:"cluster_id" jsonschema:"the cluster to tag"`
}

// TagClusterOutput is the output schema for the tag_cluster tool.
type TagClusterOutput struct {
	ClusterID  string                `json:"cluster_id"`
	Candidates []domain.TagCandidate `json:"candidates"`
	Applied    []string              `json:"applied"`
	Cached     bool                  `json:"cached"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search wiki pages by keyword, meaning or both",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "embedding_status",
		Description: "Count pages per embedding state and optionally list pages in one state",
	}, s.handleEmbeddingStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "embed_pending",
		Description: "Embed pages waiting in the pending state",
	}, s.handleEmbedPending)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "run_clustering",
		Description: "Recompute topic clusters for a wiki",
	}, s.handleRunClustering)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_clusters",
		Description: "List the current topic clusters of a wiki",
	}, s.handleListClusters)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "tag_cluster",
		Description: "Ask the language model for tags shared by a cluster's pages",
	}, s.handleTagCluster)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	opts := s.ports.SearchDefaults.Options()
	opts.WikiID = input.WikiID
	opts.Offset = input.Offset
	opts.Limit = input.Limit
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if input.Mode != "" {
		opts.Mode = domain.SearchMode(input.Mode)
	}
	if input.Threshold != nil {
		opts.Threshold = *input.Threshold
	}
	if input.SemanticWeight != nil {
		opts.SemanticWeight = *input.SemanticWeight
	}

	resp, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	results := resp.Results
	if results == nil {
		results = []domain.SearchResult{}
	}
	return nil, SearchOutput{
		Results:  results,
		Count:    len(results),
		Total:    resp.Total,
		Mode:     resp.Mode.String(),
		Degraded: resp.Degraded,
		Warnings: resp.Warnings,
	}, nil
}

// handleEmbeddingStatus handles the embedding_status tool invocation.
func (s *Server) handleEmbeddingStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input EmbeddingStatusInput,
) (*mcp.CallToolResult, EmbeddingStatusOutput, error) {
	if s.ports.Embeddings == nil {
		return nil, EmbeddingStatusOutput{}, errToolUnavailable
	}

	counts, err := s.ports.Embeddings.StatusCounts(ctx, input.WikiID)
	if err != nil {
		return nil, EmbeddingStatusOutput{}, err
	}
	output := EmbeddingStatusOutput{Counts: make(map[string]int, len(counts))}
	for _, status := range domain.AllEmbeddingStatuses() {
		output.Counts[status.String()] = counts[status]
	}

	if input.Status != "" {
		pages, err := s.ports.Embeddings.ListByStatus(ctx, domain.EmbeddingStatus(input.Status), input.WikiID, input.Limit)
		if err != nil {
			return nil, EmbeddingStatusOutput{}, err
		}
		output.Pages = make([]PageStatusOutput, len(pages))
		for i := range pages {
			output.Pages[i] = PageStatusOutput{
				PageID: pages[i].ID,
				WikiID: pages[i].WikiID,
				Title:  pages[i].Title,
				Status: pages[i].EmbeddingStatus.String(),
				Error:  pages[i].EmbeddingError,
			}
		}
	}
	return nil, output, nil
}

// handleEmbedPending handles the embed_pending tool invocation.
func (s *Server) handleEmbedPending(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input EmbedPendingInput,
) (*mcp.CallToolResult, domain.EmbedRun, error) {
	if s.ports.Embeddings == nil {
		return nil, domain.EmbedRun{}, errToolUnavailable
	}
	run, err := s.ports.Embeddings.EmbedPending(ctx, input.Limit)
	if err != nil {
		return nil, domain.EmbedRun{}, err
	}
	return nil, *run, nil
}

// handleRunClustering handles the run_clustering tool invocation.
func (s *Server) handleRunClustering(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input WikiInput,
) (*mcp.CallToolResult, RunClusteringOutput, error) {
	if s.ports.Clusters == nil {
		return nil, RunClusteringOutput{}, errToolUnavailable
	}
	run, err := s.ports.Clusters.Run(ctx, input.WikiID)
	if err != nil {
		return nil, RunClusteringOutput{}, err
	}
	output := RunClusteringOutput{
		WikiID:      run.WikiID,
		Generation:  run.Generation,
		Pages:       run.Pages,
		Clusters:    summarizeClusters(run.Clusters),
		CarriedTags: run.CarriedTags,
	}

	if input.Tag {
		if s.ports.Tagging == nil {
			return nil, RunClusteringOutput{}, domain.ErrLLMUnavailable
		}
		tagRun, err := s.ports.Tagging.TagWiki(ctx, input.WikiID)
		if err != nil {
			return nil, RunClusteringOutput{}, err
		}
		output.Tagging = tagRun
	}
	return nil, output, nil
}

// handleListClusters handles the list_clusters tool invocation.
func (s *Server) handleListClusters(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input WikiInput,
) (*mcp.CallToolResult, ListClustersOutput, error) {
	if s.ports.Clusters == nil {
		return nil, ListClustersOutput{}, errToolUnavailable
	}
	clusters, err := s.ports.Clusters.List(ctx, input.WikiID)
	if err != nil {
		return nil, ListClustersOutput{}, err
	}

	return nil, ListClustersOutput{
		Clusters: summarizeClusters(clusters),
		Count:    len(clusters),
	}, nil
}

func summarizeClusters(clusters []domain.Cluster) []ClusterOutput {
	out := make([]ClusterOutput, len(clusters))
	for i := range clusters {
		c := &clusters[i]
		out[i] = ClusterOutput{
			ID:              c.ID,
			Generation:      c.Generation,
			Size:            len(c.MemberPageIDs),
			Representatives: c.RepresentativePageIDs,
		}
		for _, tag := range c.Tags {
			out[i].Tags = append(out[i].Tags, tag.Name)
		}
	}
	return out
}

// handleTagCluster handles the tag_cluster tool invocation.
func (s *Server) handleTagCluster(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TagClusterInput,
) (*mcp.CallToolResult, TagClusterOutput, error) {
	if s.ports.Tagging == nil {
		return nil, TagClusterOutput{}, domain.ErrLLMUnavailable
	}
	result, err := s.ports.Tagging.TagCluster(ctx, input.ClusterID)
	if err != nil {
		return nil, TagClusterOutput{}, err
	}

	output := TagClusterOutput{
		ClusterID:  result.ClusterID,
		Candidates: result.Candidates,
		Applied:    make([]string, len(result.Applied)),
		Cached:     result.Cached,
	}
	for i := range result.Applied {
		output.Applied[i] = result.Applied[i].Name
	}
	return nil, output, nil
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for wikiscope resources.
	uriScheme = "wikiscope://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Template for page content.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "pages/{pageId}",
		Name:        "page-content",
		Description: "Markdown content of a wiki page",
		MIMEType:    "text/markdown",
	}, s.handlePageResource)

	// Template for a wiki's tag vocabulary.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "wikis/{wikiId}/tags",
		Name:        "wiki-tags",
		Description: "Tags defined in a wiki, human and AI proposed",
		MIMEType:    "application/json",
	}, s.handleWikiTagsResource)
}

// handlePageResource returns the content of a page.
func (s *Server) handlePageResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Pages == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	pageID := extractPageID(req.Params.URI)
	if pageID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	page, err := s.ports.Pages.Get(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("getting page: %w", err)
	}

	text := page.Content
	if page.Title != "" {
		text = "# " + page.Title + "\n\n" + text
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     text,
		}},
	}, nil
}

// handleWikiTagsResource returns the tags of a wiki.
func (s *Server) handleWikiTagsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Tags == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	wikiID := extractWikiID(req.Params.URI)
	if wikiID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	tags, err := s.ports.Tags.List(ctx, wikiID)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	type tagInfo struct {
		Name       string   `json:"name"`
		Source     string   `json:"source"`
		Verified   bool     `json:"verified"`
		Confidence *float64 `json:"confidence,omitempty"`
	}

	infos := make([]tagInfo, len(tags))
	for i := range tags {
		infos[i] = tagInfo{
			Name:       tags[i].Name,
			Source:     string(tags[i].Source),
			Verified:   tags[i].Verified,
			Confidence: tags[i].Confidence,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling tags: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractPageID extracts the page ID from a URI like wikiscope://pages/{pageId}.
func extractPageID(uri string) string {
	const prefix = uriScheme + "pages/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}

// extractWikiID extracts the wiki ID from a URI like wikiscope://wikis/{wikiId}/tags.
func extractWikiID(uri string) string {
	const prefix = uriScheme + "wikis/"
	const suffix = "/tags"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, suffix) {
		return ""
	}

	return strings.TrimSuffix(uri, suffix)
}

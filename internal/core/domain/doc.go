// Package domain defines the core business entities for Wikiscope.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Page: wiki page content plus its embedding status
//   - PageEmbedding: a chunk-level vector for a page
//   - SearchResult: a ranked hit from keyword, semantic or hybrid search
//   - Cluster: a group of semantically similar pages in one wiki
//   - Tag: a human or AI label attached to pages
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain

// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - PageStore: Page content persistence
//   - EmbeddingTracker: Per-page embedding lifecycle (claim, complete, fail)
//   - VectorIndex: Chunk embedding storage and nearest-neighbour queries
//   - KeywordSearch: Full-text search (SQLite FTS5)
//   - ClusterStore: Cluster generations and their cached tags
//   - TagStore: Tags and page associations
//   - ConfigStore: Application configuration
//   - Chunker: Splits pages into embeddable chunks
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vector embeddings. Without it, hybrid search is keyword-only.
//   - LLMService: Language model completions. Without it, cluster tagging is disabled.
//   - PromptStore: Customisable prompt templates. Without it, built-in defaults are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven

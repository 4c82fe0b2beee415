// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - PageStore: Page content, kept in step with the FTS5 keyword index
//   - EmbeddingTracker: Embedding lifecycle with atomic batch claims
//   - VectorIndex: Chunk embeddings queried through the vec_dot SQL function
//   - KeywordSearch: FTS5 bm25 search
//   - ClusterStore: Cluster generations and tag caches
//   - TagStore: Tags and page links
//   - SchedulerStore: Scheduled task state and history
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.wikiscope/data/wikiscope.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. Batch claims are single UPDATE ... RETURNING statements,
// so concurrent workers never receive the same page.
package sqlite

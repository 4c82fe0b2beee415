// Package services implements the driving ports on top of the driven ones.
//
// SearchService is the hybrid scorer, EmbeddingService runs the embedding
// lifecycle and its workers, ClusterService builds cluster generations and
// TaggingService proposes tags for them through a language model. Scheduler
// runs the embedding sweep and cluster refresh periodically.
package services

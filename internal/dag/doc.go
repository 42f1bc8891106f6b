// Package dag is a small, concurrency-safe directed acyclic graph keyed by
// string IDs. Besides the dependency relation it tracks one status per node,
// which is what lets it answer "what can run now": a node is ready when it is
// still pending and every node it depends on is terminal, regardless of how
// that dependency ended. Whether a ready node actually runs is decided by its
// condition, not by the graph.
//
// Nodes and edges are returned in insertion order so that scheduling and
// error messages are deterministic.
package dag

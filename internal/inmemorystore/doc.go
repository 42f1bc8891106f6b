// Package inmemorystore provides a thread-safe, in-memory implementation
// of the nodestore.Store interface. It is suitable for local runs, tests,
// or any scenario where node outcomes do not need to be persisted.
package inmemorystore

// Package nodestore defines the interface for the run-scoped table of
// finished nodes.
//
// # Why Node Store Exists
//
// Condition expressions read the outcome of other nodes through the
// `dependencies` and `stageDependencies` contexts. The node store is where
// those outcomes live: every stage and job instance records its terminal
// result here exactly once, right before its completion event is emitted.
// The executor builds each expression context from a snapshot of this table,
// so a node that starts later always sees everything finished before it.
//
// The table is append-only. An entry is never changed or removed once
// recorded, which keeps the single-writer discipline simple: readers take a
// snapshot, writers add new keys.
//
// # Lifecycle
//
//  1. **Created** once per run (ephemeral, not persistent across runs)
//  2. **Appended** by the executor as nodes reach a terminal status
//  3. **Snapshotted** by the executor before each condition evaluation
//  4. **Discarded** when the run ends
package nodestore

import (
	"context"
	"errors"

	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/specialistvlad/stagegrid/internal/nodeid"
)

var (
	// ErrAlreadyRecorded is returned when a node is recorded a second time.
	ErrAlreadyRecorded = errors.New("node outcome already recorded")
	// ErrNotTerminal is returned when an entry carries a non-terminal status.
	ErrNotTerminal = errors.New("node status is not terminal")
)

// Entry is the observable outcome of a finished node.
type Entry struct {
	Status model.Status
	// Result is the string exposed as dependencies.<name>.result.
	Result  string
	Outputs map[string]string
}

// Store is the interface for the append-only outcome table.
//
// Implementations MUST be safe for concurrent use: many job goroutines record
// their outcome while others take snapshots.
type Store interface {
	// Record adds the terminal outcome of a node. It fails with
	// ErrAlreadyRecorded if the node was recorded before, and with
	// ErrNotTerminal if e.Status is not terminal.
	Record(ctx context.Context, id nodeid.Address, e Entry) error

	// Get returns the outcome of a node, if it is recorded.
	Get(ctx context.Context, id nodeid.Address) (Entry, bool)

	// Snapshot returns a copy of every recorded entry keyed by the canonical
	// address string.
	Snapshot(ctx context.Context) map[string]Entry
}

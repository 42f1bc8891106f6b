package inmemorystore

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/nodeid"
	"github.com/specialistvlad/stagegrid/internal/nodestore"
)

// Store is an in-memory implementation of nodestore.Store.
//
// Entries are kept in a sync.Map keyed by the canonical address string.
// LoadOrStore gives the exactly-once guarantee without a global lock: the
// first Record for a key wins and every later one observes the stored entry.
type Store struct {
	entries sync.Map // Key: address string, Value: nodestore.Entry
}

// New creates a new, empty in-memory node store.
func New() *Store {
	return &Store{}
}

var _ nodestore.Store = (*Store)(nil)

// Record stores the terminal outcome of a node.
func (s *Store) Record(ctx context.Context, id nodeid.Address, e nodestore.Entry) error {
	key := id.String()
	if !e.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", nodestore.ErrNotTerminal, key, e.Status)
	}

	e.Outputs = maps.Clone(e.Outputs)
	if _, loaded := s.entries.LoadOrStore(key, e); loaded {
		return fmt.Errorf("%w: %s", nodestore.ErrAlreadyRecorded, key)
	}
	ctxlog.FromContext(ctx).Debug("Recorded node outcome.", "nodeID", key, "status", e.Status, "result", e.Result)
	return nil
}

// Get retrieves the recorded outcome of a node.
func (s *Store) Get(ctx context.Context, id nodeid.Address) (nodestore.Entry, bool) {
	v, ok := s.entries.Load(id.String())
	if !ok {
		return nodestore.Entry{}, false
	}
	return v.(nodestore.Entry), true
}

// Snapshot copies every recorded entry.
func (s *Store) Snapshot(ctx context.Context) map[string]nodestore.Entry {
	out := make(map[string]nodestore.Entry)
	s.entries.Range(func(k, v any) bool {
		out[k.(string)] = v.(nodestore.Entry)
		return true
	})
	return out
}

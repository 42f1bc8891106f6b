package events

import (
	"context"
	"sync"

	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/model"
)

// Queue is an unbounded multi-producer, single-consumer event queue.
type Queue struct {
	mu     sync.Mutex
	items  []model.ExecutionEvent
	closed bool
	signal chan struct{}
}

// NewQueue creates an empty, open queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Emit appends ev. Events emitted after Close are dropped.
func (q *Queue) Emit(ev model.ExecutionEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.notify()
}

// Close stops accepting events. Run returns once the backlog is delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

// Len returns the number of undelivered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Run delivers events to sink until the queue is closed and drained or ctx
// is done. It must be called by exactly one goroutine.
func (q *Queue) Run(ctx context.Context, sink Sink) error {
	logger := ctxlog.FromContext(ctx)
	for {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		for _, ev := range batch {
			if err := sink.Handle(ctx, ev); err != nil {
				logger.Warn("Event sink failed.", "kind", ev.Kind, "error", err)
			}
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return nil
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

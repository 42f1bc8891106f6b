package events

import (
	"context"
	"errors"
	"sync"

	"github.com/specialistvlad/stagegrid/internal/model"
)

// Emitter accepts events from the executor. Emit must not block.
type Emitter interface {
	Emit(ev model.ExecutionEvent)
}

// Sink consumes events in emission order.
type Sink interface {
	Handle(ctx context.Context, ev model.ExecutionEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev model.ExecutionEvent) error

// Handle calls f.
func (f SinkFunc) Handle(ctx context.Context, ev model.ExecutionEvent) error {
	return f(ctx, ev)
}

// Fanout delivers every event to each of its sinks in order. All sinks see
// the event even when an earlier one fails.
type Fanout []Sink

// Handle implements Sink.
func (f Fanout) Handle(ctx context.Context, ev model.ExecutionEvent) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Handle(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder is a sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []model.ExecutionEvent
}

// Handle implements Sink.
func (r *Recorder) Handle(_ context.Context, ev model.ExecutionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Emit implements Emitter, so a Recorder can stand in for a Queue in tests.
func (r *Recorder) Emit(ev model.ExecutionEvent) {
	_ = r.Handle(context.Background(), ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []model.ExecutionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ExecutionEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kind of each recorded event.
func (r *Recorder) Kinds() []model.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

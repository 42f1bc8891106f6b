package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DeliversInOrderAfterClose(t *testing.T) {
	// --- Arrange ---
	q := NewQueue()
	rec := &Recorder{}
	done := make(chan error, 1)
	go func() { done <- q.Run(context.Background(), rec) }()

	// --- Act ---
	for i := 0; i < 100; i++ {
		q.Emit(model.ExecutionEvent{Kind: model.EventStepOutput, Chunk: fmt.Sprint(i)})
	}
	q.Close()

	// --- Assert ---
	require.NoError(t, <-done)
	events := rec.Events()
	require.Len(t, events, 100)
	for i, ev := range events {
		assert.Equal(t, fmt.Sprint(i), ev.Chunk)
	}
}

func TestQueue_EmitNeverBlocksOnSlowSink(t *testing.T) {
	q := NewQueue()
	release := make(chan struct{})
	slow := SinkFunc(func(context.Context, model.ExecutionEvent) error {
		<-release
		return nil
	})
	done := make(chan error, 1)
	go func() { done <- q.Run(context.Background(), slow) }()

	emitted := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.Emit(model.ExecutionEvent{Kind: model.EventStepOutput})
		}
		close(emitted)
	}()

	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a slow sink")
	}
	close(release)
	q.Close()
	require.NoError(t, <-done)
	assert.Zero(t, q.Len())
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue()
	rec := &Recorder{}
	done := make(chan error, 1)
	go func() { done <- q.Run(context.Background(), rec) }()

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.Emit(model.ExecutionEvent{Kind: model.EventJobStarted})
			}
		}()
	}
	wg.Wait()
	q.Close()

	require.NoError(t, <-done)
	assert.Len(t, rec.Events(), 400)
}

func TestQueue_DropsAfterClose(t *testing.T) {
	q := NewQueue()
	q.Close()
	q.Emit(model.ExecutionEvent{Kind: model.EventJobStarted})
	assert.Zero(t, q.Len())

	rec := &Recorder{}
	require.NoError(t, q.Run(context.Background(), rec))
	assert.Empty(t, rec.Events())
}

func TestQueue_SinkErrorsDoNotStopDelivery(t *testing.T) {
	q := NewQueue()
	rec := &Recorder{}
	failing := SinkFunc(func(context.Context, model.ExecutionEvent) error {
		return errors.New("boom")
	})
	q.Emit(model.ExecutionEvent{Kind: model.EventJobStarted})
	q.Emit(model.ExecutionEvent{Kind: model.EventJobCompleted})
	q.Close()

	require.NoError(t, q.Run(context.Background(), Fanout{failing, rec}))
	assert.Equal(t, []model.EventKind{model.EventJobStarted, model.EventJobCompleted}, rec.Kinds())
}

func TestQueue_RunStopsOnContextCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, &Recorder{}) }()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestFanout_JoinsErrors(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	f := Fanout{
		SinkFunc(func(context.Context, model.ExecutionEvent) error { return errA }),
		nil,
		SinkFunc(func(context.Context, model.ExecutionEvent) error { return errB }),
	}

	err := f.Handle(context.Background(), model.ExecutionEvent{})

	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

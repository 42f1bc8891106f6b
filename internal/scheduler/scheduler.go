package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/dag"
	"github.com/specialistvlad/stagegrid/internal/model"
	"golang.org/x/sync/semaphore"
)

// ErrDeadlock is returned when pending nodes remain but none can become ready.
var ErrDeadlock = errors.New("scheduler deadlock")

// Task executes one node and returns its terminal status.
type Task func(ctx context.Context, id string) model.Status

// Options configures a Run.
type Options struct {
	// Workers caps concurrently running tasks of this run. Zero or less
	// means one worker per node.
	Workers int
	// Slots, if set, is shared across runs: each task holds one unit while it
	// executes. It caps work across concurrently driven graphs.
	Slots *semaphore.Weighted
	// Group assigns a node to a concurrency group with its own cap. A limit
	// of zero or less leaves the group uncapped. Nil means no groups.
	Group func(id string) (group string, limit int64)
}

type completion struct {
	id     string
	status model.Status
}

// Run dispatches every node of g to task, respecting dependency order and
// the configured caps, and returns once every node is terminal.
func Run(ctx context.Context, g *dag.Graph, opts Options, task Task) error {
	logger := ctxlog.FromContext(ctx)

	workers := opts.Workers
	if workers <= 0 {
		workers = max(g.Len(), 1)
	}
	p := pool.New().WithMaxGoroutines(workers)
	defer p.Wait()

	done := make(chan completion, g.Len())
	groups := make(map[string]*semaphore.Weighted)
	held := make(map[string]*semaphore.Weighted)
	running := 0

	for {
		for _, id := range g.ReadyNodes() {
			sem := groupSemaphore(opts.Group, groups, id)
			if sem != nil && !sem.TryAcquire(1) {
				logger.Debug("Group at capacity, deferring node.", "nodeID", id)
				continue
			}
			if err := g.MarkStatus(id, model.StatusRunning); err != nil {
				return fmt.Errorf("failed to start node '%s': %w", id, err)
			}
			held[id] = sem
			running++

			logger.Debug("Dispatching node.", "nodeID", id, "running", running)
			p.Go(func() {
				done <- completion{id: id, status: runTask(ctx, opts.Slots, task, id)}
			})
		}

		if running == 0 {
			if g.AllTerminal() {
				return nil
			}
			return fmt.Errorf("%w: unfinished nodes %s", ErrDeadlock, strings.Join(g.Unfinished(), ", "))
		}

		c := <-done
		running--
		if sem := held[c.id]; sem != nil {
			sem.Release(1)
		}
		delete(held, c.id)

		status := c.status
		if !status.IsTerminal() {
			logger.Error("Task returned a non-terminal status.", "nodeID", c.id, "status", status)
			status = model.StatusFailed
		}
		if err := g.MarkStatus(c.id, status); err != nil {
			return fmt.Errorf("failed to complete node '%s': %w", c.id, err)
		}
		logger.Debug("Node completed.", "nodeID", c.id, "status", status)
	}
}

func groupSemaphore(group func(string) (string, int64), groups map[string]*semaphore.Weighted, id string) *semaphore.Weighted {
	if group == nil {
		return nil
	}
	key, limit := group(id)
	if limit <= 0 {
		return nil
	}
	sem, ok := groups[key]
	if !ok {
		sem = semaphore.NewWeighted(limit)
		groups[key] = sem
	}
	return sem
}

// runTask runs task with a shared slot held. A panic fails the node instead
// of tearing down the pool, so its completion is always reported.
func runTask(ctx context.Context, slots *semaphore.Weighted, task Task, id string) (status model.Status) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Task panicked.", "nodeID", id, "panic", r)
			status = model.StatusFailed
		}
	}()

	if slots != nil {
		if err := slots.Acquire(ctx, 1); err == nil {
			defer slots.Release(1)
		}
	}
	return task(ctx, id)
}

// Package executor drives an execution graph to completion.
//
// Stages are scheduled over the stage DAG and, inside each running stage,
// job instances over the stage's job DAG. Every node evaluates its condition
// against a fresh snapshot of the outcomes recorded so far, immediately
// before it would run. Failures propagate only through those conditions:
// a failed job never stops its siblings.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/events"
	"github.com/specialistvlad/stagegrid/internal/expr"
	"github.com/specialistvlad/stagegrid/internal/graph"
	"github.com/specialistvlad/stagegrid/internal/inmemorystore"
	"github.com/specialistvlad/stagegrid/internal/logstore"
	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/specialistvlad/stagegrid/internal/nodestore"
	"github.com/specialistvlad/stagegrid/internal/scheduler"
	"github.com/specialistvlad/stagegrid/internal/shell"
	"github.com/specialistvlad/stagegrid/internal/taskstore"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the job concurrency used when Options.Workers is unset.
const DefaultWorkers = 10

// TaskResolver turns a task reference into a runnable task.
type TaskResolver interface {
	Resolve(ref string) (*taskstore.Task, error)
}

// Options configures an Executor. Only Runner is required.
type Options struct {
	Runner shell.Runner
	// Tasks resolves task steps. Without it every task step fails.
	Tasks TaskResolver
	// Events receives progress events. Nil disables emission.
	Events events.Emitter
	// Logs, if set, stores the combined output of every step.
	Logs *logstore.Store
	// Store records node outcomes. Defaults to a fresh in-memory store per run.
	Store nodestore.Store
	// Workers caps concurrently running jobs across all stages.
	Workers int
	// WorkDir is where steps run. Defaults to the pipeline file's directory.
	WorkDir string
	// JobTimeout applies to jobs that declare no timeout. Zero means none.
	JobTimeout time.Duration
	// Environ is the base environment of every step. Defaults to os.Environ().
	Environ []string
	// RunID identifies the run in results, events and log paths.
	RunID string
	// Parameters are exposed to expressions as `parameters`.
	Parameters map[string]expr.Value
}

// Executor runs execution graphs.
type Executor struct {
	opts  Options
	cache *expr.Cache
}

// New creates an executor.
func New(opts Options) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Executor{opts: opts, cache: expr.NewCache()}
}

// run holds the state of one Execute call.
type run struct {
	e        *Executor
	g        *graph.Graph
	id       string
	store    nodestore.Store
	slots    *semaphore.Weighted
	workDir  string
	environ  []string
	deadline time.Duration

	mu     sync.Mutex
	stages map[string]*model.StageResult
}

// Execute runs g and returns the aggregated result. A graph can be executed
// only once, since node statuses live in its DAGs. Step and job failures are
// reported in the result; the returned error is reserved for scheduling
// faults.
func (e *Executor) Execute(ctx context.Context, g *graph.Graph) (*model.ExecutionResult, error) {
	r := e.newRun(g)
	ctx = ctxlog.With(ctx, "runID", r.id)
	logger := ctxlog.FromContext(ctx)

	started := time.Now()
	logger.Info("Starting pipeline.", "pipeline", g.Pipeline.Name, "stages", g.Stages.Len(), "jobs", g.JobCount())
	r.emit(model.ExecutionEvent{Kind: model.EventPipelineStarted, Status: model.StatusRunning})

	err := scheduler.Run(ctx, g.Stages, scheduler.Options{}, func(ctx context.Context, id string) model.Status {
		return r.runStage(ctx, id)
	})
	if err != nil {
		err = fmt.Errorf("failed to execute stages: %w", err)
	}

	res := r.result(ctx, started)
	logger.Info("Pipeline finished.", "status", res.Status, "duration", res.Duration)
	r.emit(model.ExecutionEvent{
		Kind:     model.EventPipelineCompleted,
		Status:   res.Status,
		Duration: res.Duration,
		Result:   res,
	})
	return res, err
}

func (e *Executor) newRun(g *graph.Graph) *run {
	r := &run{
		e:        e,
		g:        g,
		id:       e.opts.RunID,
		store:    e.opts.Store,
		slots:    semaphore.NewWeighted(int64(e.opts.Workers)),
		workDir:  e.opts.WorkDir,
		environ:  e.opts.Environ,
		deadline: e.opts.JobTimeout,
		stages:   make(map[string]*model.StageResult),
	}
	if r.id == "" {
		r.id = logstore.NewRunID()
	}
	if r.store == nil {
		r.store = inmemorystore.New()
	}
	if r.workDir == "" && g.Pipeline.Source != "" {
		r.workDir = filepath.Dir(g.Pipeline.Source)
	}
	if r.environ == nil {
		r.environ = os.Environ()
	}
	return r
}

// emit stamps and publishes ev. It is a no-op without an emitter.
func (r *run) emit(ev model.ExecutionEvent) {
	if r.e.opts.Events == nil {
		return
	}
	ev.RunID = r.id
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.e.opts.Events.Emit(ev)
}

// result assembles the execution result in declaration order.
func (r *run) result(ctx context.Context, started time.Time) *model.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := &model.ExecutionResult{
		RunID:     r.id,
		Pipeline:  r.g.Pipeline.Name,
		Status:    model.StatusSuccess,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	for _, sn := range r.g.StageNodes() {
		sr, ok := r.stages[sn.Name]
		if !ok {
			sr = &model.StageResult{Name: sn.Name, Status: model.StatusSkipped, Canceled: ctx.Err() != nil}
		}
		res.Stages = append(res.Stages, *sr)
		if sr.Status == model.StatusFailed {
			res.Status = model.StatusFailed
		}
		if sr.Canceled {
			res.Canceled = true
		}
	}
	if res.Canceled {
		res.Status = model.StatusFailed
	}
	return res
}

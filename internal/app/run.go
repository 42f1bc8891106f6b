package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/events"
	"github.com/specialistvlad/stagegrid/internal/executor"
	"github.com/specialistvlad/stagegrid/internal/logstore"
	"github.com/specialistvlad/stagegrid/internal/model"
)

// ErrPipelineFailed is returned by Run when the pipeline finished with a
// failed result.
var ErrPipelineFailed = errors.New("pipeline failed")

// Run loads the pipeline and executes it to completion. The result is
// returned even when the pipeline failed; the error then wraps
// ErrPipelineFailed and names the failed nodes.
func (a *App) Run(ctx context.Context) (*model.ExecutionResult, error) {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)

	g, err := a.LoadGraph(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := a.LoadTasks(ctx)
	if err != nil {
		return nil, err
	}

	if a.config.HealthcheckPort > 0 {
		if err := a.startStatusServer(ctx); err != nil {
			return nil, err
		}
		defer a.closeStatusServer(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sinks, err := a.openSinks(runCtx, g.Pipeline.Name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Warn("Failed to close event sinks.", "error", err)
		}
	}()

	opts := executor.Options{
		Runner:     a.runner,
		Workers:    a.config.WorkerCount,
		WorkDir:    a.config.WorkDir,
		JobTimeout: a.config.JobTimeout,
		Parameters: a.parameters(),
	}
	if tasks != nil {
		opts.Tasks = tasks
	}
	if a.config.LogDir != "" {
		opts.Logs = logstore.New(a.config.LogDir)
	}

	queue := events.NewQueue()
	opts.Events = queue

	var res *model.ExecutionResult
	var eg errgroup.Group
	eg.Go(func() error {
		// Delivery outlives cancellation so the final events still arrive.
		return queue.Run(context.WithoutCancel(ctx), sinks.fanout)
	})
	if sinks.program != nil {
		eg.Go(func() error {
			_, err := sinks.program.Run()
			// Quitting the view stops the run.
			cancel()
			if errors.Is(err, context.Canceled) || errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		})
	}
	eg.Go(func() error {
		defer queue.Close()
		r, err := executor.New(opts).Execute(runCtx, g)
		res = r
		if sinks.program != nil {
			sinks.program.Quit()
		}
		return err
	})
	if err := eg.Wait(); err != nil {
		return res, fmt.Errorf("pipeline execution failed: %w", err)
	}

	a.setResult(res)
	if sinks.program != nil {
		// The interactive view is gone once the program exits.
		if err := events.RenderSummary(a.outW, res); err != nil {
			logger.Warn("Failed to print summary.", "error", err)
		}
	}
	if res.Status == model.StatusFailed {
		failed := res.FailedNodes()
		logger.Error("Pipeline failed.", "failed", failed)
		return res, fmt.Errorf("%w: %s", ErrPipelineFailed, strings.Join(failed, ", "))
	}
	logger.Info("Pipeline succeeded.", "pipeline", res.Pipeline, "duration", res.Duration)
	return res, nil
}

package executor

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/expr"
	"github.com/specialistvlad/stagegrid/internal/graph"
	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/specialistvlad/stagegrid/internal/nodestore"
	"github.com/specialistvlad/stagegrid/internal/scheduler"
)

// condition evaluates a node condition; an empty one means succeeded().
func (r *run) condition(src string, c *expr.Context) (bool, error) {
	if strings.TrimSpace(src) == "" {
		src = expr.DefaultCondition
	}
	e, err := r.e.cache.Parse(src)
	if err == nil {
		var v expr.Value
		if v, err = expr.Evaluate(e, c); err == nil {
			return v.Truthy(), nil
		}
	}
	return false, fmt.Errorf("condition %q: %w", src, err)
}

// runStage is the scheduler task of a stage node.
func (r *run) runStage(ctx context.Context, name string) model.Status {
	sn, ok := r.g.Stage(name)
	if !ok {
		ctxlog.FromContext(ctx).Error("Stage not found in graph.", "stage", name)
		return model.StatusFailed
	}
	ctx = ctxlog.With(ctx, "stage", name)
	logger := ctxlog.FromContext(ctx)
	sr := &model.StageResult{Name: name}

	if ctx.Err() != nil {
		logger.Warn("Run canceled, skipping stage.")
		sr.Canceled = true
		return r.skipStage(ctx, sn, sr, true)
	}

	proceed, err := r.condition(sn.Stage.Condition, r.stageContext(ctx, sn))
	if err != nil {
		logger.Error("Stage condition failed.", "error", err)
		sr.Status = model.StatusFailed
		sr.Error = err.Error()
		r.skipJobs(ctx, sn, sr, false)
		return r.finishStage(ctx, sn, sr)
	}
	if !proceed {
		logger.Info("Stage condition is false, skipping.")
		return r.skipStage(ctx, sn, sr, false)
	}

	sr.StartedAt = time.Now()
	logger.Info("Starting stage.", "jobs", sn.Jobs.Len())
	r.emit(model.ExecutionEvent{Kind: model.EventStageStarted, Stage: name, Status: model.StatusRunning})

	var mu sync.Mutex
	results := make(map[string]model.JobResult, sn.Jobs.Len())
	opts := scheduler.Options{
		Slots: r.slots,
		Group: func(id string) (string, int64) {
			jn, ok := sn.Job(id)
			if !ok || jn.Instance.MaxParallel <= 0 {
				return "", 0
			}
			return jn.Template, int64(jn.Instance.MaxParallel)
		},
	}
	err = scheduler.Run(ctx, sn.Jobs, opts, func(ctx context.Context, id string) model.Status {
		jr := r.runJob(ctx, sn, id)
		mu.Lock()
		results[id] = jr
		mu.Unlock()
		return jr.Status
	})
	if err != nil {
		logger.Error("Job scheduling failed.", "error", err)
		sr.Error = err.Error()
	}

	for _, jn := range sn.JobNodes() {
		jr, ok := results[jn.Name]
		if !ok {
			jr = model.JobResult{Name: jn.Name, Template: jn.Template, Stage: name, Status: model.StatusSkipped}
		}
		sr.Jobs = append(sr.Jobs, jr)
	}
	sr.Status, sr.WithIssues, sr.Canceled = stageStatus(sr.Jobs)
	if err != nil {
		sr.Status = model.StatusFailed
	}
	sr.Duration = time.Since(sr.StartedAt)
	return r.finishStage(ctx, sn, sr)
}

// stageStatus aggregates job results. Failed jobs marked continueOnError do
// not fail the stage. A stage without jobs succeeds.
func stageStatus(jobs []model.JobResult) (status model.Status, withIssues, canceled bool) {
	failed := false
	skipped := 0
	for _, j := range jobs {
		switch {
		case j.Status == model.StatusFailed && !j.ContinueOnError:
			failed = true
		case j.Status == model.StatusSkipped:
			skipped++
		}
		withIssues = withIssues || j.WithIssues
		canceled = canceled || j.Canceled
	}
	switch {
	case failed:
		return model.StatusFailed, withIssues, canceled
	case len(jobs) > 0 && skipped == len(jobs):
		return model.StatusSkipped, false, canceled
	default:
		return model.StatusSuccess, withIssues, canceled
	}
}

// skipStage finishes a stage that never started.
func (r *run) skipStage(ctx context.Context, sn *graph.StageNode, sr *model.StageResult, canceled bool) model.Status {
	sr.Status = model.StatusSkipped
	sr.Canceled = canceled
	r.skipJobs(ctx, sn, sr, canceled)
	return r.finishStage(ctx, sn, sr)
}

// skipJobs records every job of a stage that will not run as Skipped.
func (r *run) skipJobs(ctx context.Context, sn *graph.StageNode, sr *model.StageResult, canceled bool) {
	for _, jn := range sn.JobNodes() {
		if err := sn.Jobs.MarkStatus(jn.Name, model.StatusSkipped); err != nil {
			ctxlog.FromContext(ctx).Debug("Job already terminal.", "job", jn.Name, "error", err)
		}
		jr := model.JobResult{
			Name:            jn.Name,
			Template:        jn.Template,
			Stage:           sn.Name,
			Status:          model.StatusSkipped,
			Canceled:        canceled,
			ContinueOnError: jn.Job.ContinueOnError,
			Matrix:          jn.Instance.Overlay,
		}
		sr.Jobs = append(sr.Jobs, r.finishJob(ctx, jn, jr))
	}
}

// finishStage records the stage outcome, then announces it.
func (r *run) finishStage(ctx context.Context, sn *graph.StageNode, sr *model.StageResult) model.Status {
	outputs := make(map[string]string)
	for _, j := range sr.Jobs {
		for k, v := range j.Outputs {
			outputs[j.Name+"."+k] = v
		}
	}
	entry := nodestore.Entry{Status: sr.Status, Result: sr.Result(), Outputs: outputs}
	if err := r.store.Record(ctx, sn.Address, entry); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to record stage outcome.", "error", err)
	}

	r.mu.Lock()
	stored := *sr
	stored.Jobs = append([]model.JobResult(nil), sr.Jobs...)
	r.stages[sn.Name] = &stored
	r.mu.Unlock()

	ctxlog.FromContext(ctx).Info("Stage finished.", "status", sr.Status, "result", sr.Result(), "duration", sr.Duration)
	r.emit(model.ExecutionEvent{
		Kind:     model.EventStageCompleted,
		Stage:    sn.Name,
		Status:   sr.Status,
		Duration: sr.Duration,
		Error:    sr.Error,
	})
	return sr.Status
}

// jobOutputs returns a copy of outputs, or nil when empty.
func jobOutputs(outputs map[string]string) map[string]string {
	if len(outputs) == 0 {
		return nil
	}
	return maps.Clone(outputs)
}

package executor

import (
	"context"
	"maps"
	"time"

	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/graph"
	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/specialistvlad/stagegrid/internal/nodestore"
)

// jobState is what the steps of one job share while it runs.
type jobState struct {
	// result is the job result so far, consulted by step status functions.
	result   string
	failed   bool
	issues   bool
	canceled bool
	err      string
	vars     map[string]string
	outputs  map[string]string
}

// stepDone folds a finished step into the job state.
func (s *jobState) stepDone(step *model.Step, res model.StepResult) {
	switch {
	case res.Status != model.StatusFailed:
	case step.ContinueOnError:
		s.issues = true
		if s.result == model.ResultSucceeded {
			s.result = model.ResultSucceededWithIssues
		}
	default:
		s.failed = true
		s.result = model.ResultFailed
		if s.err == "" {
			s.err = "step '" + res.Name + "': " + res.Error
		}
	}
}

// runJob is the scheduler task of a job instance.
func (r *run) runJob(ctx context.Context, sn *graph.StageNode, name string) model.JobResult {
	jn, ok := sn.Job(name)
	if !ok {
		ctxlog.FromContext(ctx).Error("Job not found in stage.", "job", name)
		return model.JobResult{Name: name, Stage: sn.Name, Status: model.StatusFailed, Error: "job not found"}
	}
	ctx = ctxlog.With(ctx, "job", name)
	logger := ctxlog.FromContext(ctx)

	jr := model.JobResult{
		Name:            jn.Name,
		Template:        jn.Template,
		Stage:           sn.Name,
		ContinueOnError: jn.Job.ContinueOnError,
		Matrix:          jn.Instance.Overlay,
	}

	if ctx.Err() != nil {
		logger.Warn("Run canceled, skipping job.")
		jr.Status = model.StatusSkipped
		jr.Canceled = true
		return r.finishJob(ctx, jn, jr)
	}

	jc := r.jobContext(ctx, sn, jn)
	proceed, err := r.condition(jn.Job.Condition, jc)
	if err != nil {
		logger.Error("Job condition failed.", "error", err)
		jr.Status = model.StatusFailed
		jr.Error = err.Error()
		return r.finishJob(ctx, jn, jr)
	}
	if !proceed {
		logger.Info("Job condition is false, skipping.")
		jr.Status = model.StatusSkipped
		return r.finishJob(ctx, jn, jr)
	}

	jr.StartedAt = time.Now()
	logger.Info("Starting job.", "steps", len(jn.Job.Steps))
	r.emit(model.ExecutionEvent{Kind: model.EventJobStarted, Stage: sn.Name, Job: jn.Name, Status: model.StatusRunning})

	timeout := jn.Job.Timeout
	if timeout <= 0 {
		timeout = r.deadline
	}
	jobCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	st := &jobState{
		result:  model.ResultSucceeded,
		vars:    maps.Clone(jc.Variables),
		outputs: make(map[string]string),
	}
	if st.vars == nil {
		st.vars = make(map[string]string)
	}
	for i, step := range jn.Job.Steps {
		res := r.runStep(stepRun{
			ctx:     ctx,
			jobCtx:  jobCtx,
			timeout: timeout,
			stage:   sn,
			job:     jn,
			base:    jc,
			state:   st,
			index:   i,
			step:    step,
		})
		st.stepDone(step, res)
		jr.Steps = append(jr.Steps, res)
	}

	switch {
	case st.failed:
		jr.Status = model.StatusFailed
		jr.Error = st.err
		jr.WithIssues = jn.Job.ContinueOnError
	case st.canceled:
		jr.Status = model.StatusSkipped
		jr.Canceled = true
	default:
		jr.Status = model.StatusSuccess
		jr.WithIssues = st.issues
	}
	jr.Outputs = jobOutputs(st.outputs)
	jr.Duration = time.Since(jr.StartedAt)
	return r.finishJob(ctx, jn, jr)
}

// finishJob records the job outcome, then announces it.
func (r *run) finishJob(ctx context.Context, jn *graph.JobNode, jr model.JobResult) model.JobResult {
	logger := ctxlog.FromContext(ctx)
	entry := nodestore.Entry{Status: jr.Status, Result: jr.Result(), Outputs: jr.Outputs}
	if err := r.store.Record(ctx, jn.Address, entry); err != nil {
		logger.Error("Failed to record job outcome.", "error", err)
	}

	switch jr.Status {
	case model.StatusFailed:
		logger.Error("Job failed.", "result", jr.Result(), "error", jr.Error, "duration", jr.Duration)
	case model.StatusSkipped:
		logger.Info("Job skipped.", "canceled", jr.Canceled)
	default:
		logger.Info("Job finished.", "result", jr.Result(), "duration", jr.Duration)
	}
	r.emit(model.ExecutionEvent{
		Kind:     model.EventJobCompleted,
		Stage:    jr.Stage,
		Job:      jr.Name,
		Status:   jr.Status,
		Duration: jr.Duration,
		Error:    jr.Error,
	})
	return jr
}

package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/expr"
	"github.com/specialistvlad/stagegrid/internal/graph"
	"github.com/specialistvlad/stagegrid/internal/logstore"
	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/specialistvlad/stagegrid/internal/shell"
	"github.com/specialistvlad/stagegrid/internal/taskstore"
)

// stepRun bundles what runStep needs. ctx is the run context; jobCtx adds
// the job timeout on top of it.
type stepRun struct {
	ctx     context.Context
	jobCtx  context.Context
	timeout time.Duration
	stage   *graph.StageNode
	job     *graph.JobNode
	base    *expr.Context
	state   *jobState
	index   int
	step    *model.Step
}

func stepName(step *model.Step, index int) string {
	if step.Name != "" {
		return step.Name
	}
	return fmt.Sprintf("step%d", index+1)
}

// stepContext derives the step-scope context from the job context.
func (s stepRun) stepContext() *expr.Context {
	c := *s.base
	c.Scope = expr.ScopeStep
	c.Variables = maps.Clone(s.state.vars)
	c.JobStatus = s.state.result
	c.Canceled = s.ctx.Err() != nil
	return &c
}

// runStep runs one step to completion and reports its result. Step N+1 is
// only started by the caller after this returns.
func (r *run) runStep(s stepRun) model.StepResult {
	name := stepName(s.step, s.index)
	ctx := ctxlog.With(s.ctx, "step", name)
	logger := ctxlog.FromContext(ctx)
	res := model.StepResult{Name: name}

	done := func() model.StepResult {
		logger.Debug("Step finished.", "status", res.Status, "exitCode", res.ExitCode, "duration", res.Duration)
		r.emit(model.ExecutionEvent{
			Kind:     model.EventStepCompleted,
			Stage:    s.stage.Name,
			Job:      s.job.Name,
			Step:     name,
			Status:   res.Status,
			Duration: res.Duration,
			Error:    res.Error,
		})
		return res
	}

	switch {
	case s.ctx.Err() != nil:
		res.Status = model.StatusSkipped
		res.Error = "canceled"
		s.state.canceled = true
		return done()
	case s.jobCtx.Err() != nil:
		res.Status = model.StatusSkipped
		res.Error = fmt.Sprintf("job timed out after %s", s.timeout)
		return done()
	}

	sc := s.stepContext()
	proceed, err := r.condition(s.step.Condition, sc)
	if err != nil {
		res.Status = model.StatusFailed
		res.Error = err.Error()
		return done()
	}
	if !proceed {
		res.Status = model.StatusSkipped
		return done()
	}

	res.StartedAt = time.Now()
	r.emit(model.ExecutionEvent{
		Kind:   model.EventStepStarted,
		Stage:  s.stage.Name,
		Job:    s.job.Name,
		Step:   name,
		Status: model.StatusRunning,
	})

	cmd, err := r.command(sc, s, name)
	if err != nil {
		logger.Error("Failed to prepare step.", "error", err)
		res.Status = model.StatusFailed
		res.Error = err.Error()
		res.Duration = time.Since(res.StartedAt)
		return done()
	}

	var stepLog *logstore.StepLog
	if r.e.opts.Logs != nil {
		stepLog, err = r.e.opts.Logs.Create(r.id, s.stage.Name, s.job.Name, s.index, name)
		if err != nil {
			logger.Warn("Step log unavailable.", "error", err)
		}
	}
	var logW io.Writer
	if stepLog != nil {
		logW = stepLog
	}
	cmd.Stdout = r.stream(s, name, model.StreamStdout, logW)
	cmd.Stderr = r.stream(s, name, model.StreamStderr, logW)

	logger.Debug("Running step.", "argv", cmd.Argv, "dir", cmd.Dir)
	out, runErr := r.e.opts.Runner.Run(s.jobCtx, cmd)
	res.ExitCode = out.ExitCode
	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	res.Duration = time.Since(res.StartedAt)

	switch {
	case runErr != nil && s.ctx.Err() != nil:
		res.Status = model.StatusSkipped
		res.Error = "canceled"
		s.state.canceled = true
	case runErr != nil && errors.Is(s.jobCtx.Err(), context.DeadlineExceeded):
		res.Status = model.StatusFailed
		res.Error = fmt.Sprintf("timed out after %s", s.timeout)
	case runErr != nil:
		res.Status = model.StatusFailed
		res.Error = runErr.Error()
	case out.ExitCode != 0:
		res.Status = model.StatusFailed
		res.Error = fmt.Sprintf("exit code %d", out.ExitCode)
	default:
		res.Status = model.StatusSuccess
	}
	applySetVariables(s.state, name, out.Stdout)

	if stepLog != nil {
		digest, err := stepLog.Close()
		if err != nil {
			logger.Warn("Failed to finalize step log.", "error", err)
		} else {
			res.LogPath = stepLog.Path()
			res.LogDigest = digest
		}
	}
	if res.Status == model.StatusFailed {
		logger.Warn("Step failed.", "error", res.Error, "continueOnError", s.step.ContinueOnError)
	}
	return done()
}

// command resolves the step action into a shell command with runtime
// expressions substituted.
func (r *run) command(sc *expr.Context, s stepRun, name string) (shell.Command, error) {
	action := s.step.Action
	var inputEnv map[string]string

	if ref := action.Task; ref != nil {
		if r.e.opts.Tasks == nil {
			return shell.Command{}, fmt.Errorf("task '%s': %w (no task manifests loaded)", ref.Ref, taskstore.ErrTaskNotFound)
		}
		task, err := r.e.opts.Tasks.Resolve(ref.Ref)
		if err != nil {
			return shell.Command{}, fmt.Errorf("failed to resolve task '%s': %w", ref.Ref, err)
		}
		inputs, err := interpolateMap(ref.Inputs, sc)
		if err != nil {
			return shell.Command{}, fmt.Errorf("task '%s' inputs: %w", ref.Ref, err)
		}
		if inputEnv, err = task.Env(inputs); err != nil {
			return shell.Command{}, fmt.Errorf("task '%s': %w", task.Ref(), err)
		}
		action = task.Action
	}

	var argv []string
	switch {
	case action.Shell != nil:
		script, err := expr.Interpolate(action.Shell.Script, expr.ModeRuntime, sc)
		if err != nil {
			return shell.Command{}, fmt.Errorf("script: %w", err)
		}
		interpreter := action.Shell.Interpreter
		if interpreter == "" {
			interpreter = shell.DefaultInterpreter
		}
		if argv, err = shell.ScriptArgv(interpreter, script); err != nil {
			return shell.Command{}, err
		}
	case action.Command != nil:
		for i, arg := range action.Command.Argv {
			v, err := expr.Interpolate(arg, expr.ModeRuntime, sc)
			if err != nil {
				return shell.Command{}, fmt.Errorf("command argument %d: %w", i, err)
			}
			argv = append(argv, v)
		}
		if len(argv) == 0 {
			return shell.Command{}, errors.New("empty command")
		}
	default:
		return shell.Command{}, errors.New("step has no action")
	}

	env, err := r.environment(sc, s, name, inputEnv)
	if err != nil {
		return shell.Command{}, err
	}
	return shell.Command{Argv: argv, Dir: r.workDir, Env: env}, nil
}

// stream returns the writer a step output stream is sent to: the event
// queue and, if present, the step log. Nil when neither is configured.
func (r *run) stream(s stepRun, step, name string, log io.Writer) io.Writer {
	if r.e.opts.Events == nil && log == nil {
		return nil
	}
	var emit func(model.ExecutionEvent)
	if r.e.opts.Events != nil {
		emit = r.emit
	}
	return &streamWriter{
		emit: emit,
		log:  log,
		base: model.ExecutionEvent{
			Kind:   model.EventStepOutput,
			Stage:  s.stage.Name,
			Job:    s.job.Name,
			Step:   step,
			Status: model.StatusRunning,
			Stream: name,
		},
	}
}

type streamWriter struct {
	emit func(model.ExecutionEvent)
	log  io.Writer
	base model.ExecutionEvent
}

func (w *streamWriter) Write(p []byte) (int, error) {
	if w.log != nil {
		_, _ = w.log.Write(p)
	}
	if w.emit != nil {
		ev := w.base
		ev.Chunk = string(p)
		w.emit(ev)
	}
	return len(p), nil
}

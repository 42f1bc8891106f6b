package testutil

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/specialistvlad/stagegrid/internal/shell"
)

// Environment variables the executor exports to every step. FakeRunner uses
// them to identify which step a command belongs to.
const (
	envStage = "SYSTEM_STAGENAME"
	envJob   = "SYSTEM_JOBNAME"
	envStep  = "SYSTEM_STEPNAME"
)

// FakeResponse is what FakeRunner returns for a step.
type FakeResponse struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
	// Delay is slept before returning; canceling the context cuts it short.
	Delay time.Duration
}

// FakeRunner is a shell.Runner that never starts a process. It records the
// execution window of every command, keyed by "stage/job/step".
type FakeRunner struct {
	// Delay applies to steps without a configured response.
	Delay time.Duration

	mu        sync.Mutex
	responses map[string]FakeResponse
	records   map[string]ExecutionRecord
	calls     []shell.Command
	order     []string
}

// NewFakeRunner returns a runner where every step succeeds.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		responses: make(map[string]FakeResponse),
		records:   make(map[string]ExecutionRecord),
	}
}

// On configures the response for a step key ("stage/job/step"). A key of
// the form "job/step" or "step" matches any stage (and job).
func (f *FakeRunner) On(key string, resp FakeResponse) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = resp
	return f
}

// Run implements shell.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd shell.Command) (shell.Result, error) {
	key := StepKey(cmd)
	resp := f.response(key)

	start := time.Now()
	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			f.record(key, cmd, start)
			return shell.Result{ExitCode: -1}, ctx.Err()
		}
	}

	writeTo(cmd.Stdout, resp.Stdout)
	writeTo(cmd.Stderr, resp.Stderr)
	f.record(key, cmd, start)
	return shell.Result{ExitCode: resp.ExitCode, Stdout: resp.Stdout, Stderr: resp.Stderr}, resp.Err
}

func (f *FakeRunner) response(key string) FakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(key, "/")
	for i := range parts {
		if resp, ok := f.responses[strings.Join(parts[i:], "/")]; ok {
			return resp
		}
	}
	return FakeResponse{Delay: f.Delay}
}

func (f *FakeRunner) record(key string, cmd shell.Command, start time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[key] = ExecutionRecord{Start: start, End: time.Now()}
	f.calls = append(f.calls, cmd)
	f.order = append(f.order, key)
}

func writeTo(w io.Writer, s string) {
	if w != nil && s != "" {
		_, _ = io.WriteString(w, s)
	}
}

// Records returns a copy of the execution windows keyed by step key.
func (f *FakeRunner) Records() map[string]ExecutionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]ExecutionRecord, len(f.records))
	for k, v := range f.records {
		out[k] = v
	}
	return out
}

// Calls returns every command received, in completion order.
func (f *FakeRunner) Calls() []shell.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shell.Command(nil), f.calls...)
}

// Order returns the step keys in completion order.
func (f *FakeRunner) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// Ran reports whether the step key was executed.
func (f *FakeRunner) Ran(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[key]
	return ok
}

// StepKey derives "stage/job/step" from the command environment.
func StepKey(cmd shell.Command) string {
	return Env(cmd, envStage) + "/" + Env(cmd, envJob) + "/" + Env(cmd, envStep)
}

// Env returns the value of name in the command environment; the last
// assignment wins, as it does for a real process.
func Env(cmd shell.Command, name string) string {
	value := ""
	prefix := name + "="
	for _, kv := range cmd.Env {
		if strings.HasPrefix(kv, prefix) {
			value = kv[len(prefix):]
		}
	}
	return value
}

package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/stagegrid/internal/events"
	"github.com/specialistvlad/stagegrid/internal/graph"
	"github.com/specialistvlad/stagegrid/internal/inmemorystore"
	"github.com/specialistvlad/stagegrid/internal/logstore"
	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/specialistvlad/stagegrid/internal/nodeid"
	"github.com/specialistvlad/stagegrid/internal/taskstore"
	"github.com/specialistvlad/stagegrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fail  = testutil.FakeResponse{ExitCode: 1}
	noDep = []string{}
)

// execute builds p and runs it with runner, applying opts on top of a
// deterministic base configuration.
func execute(t *testing.T, ctx context.Context, p *model.Pipeline, runner *testutil.FakeRunner, opts ...func(*Options)) *model.ExecutionResult {
	t.Helper()
	g, err := graph.Build(ctx, p, nil)
	require.NoError(t, err)

	o := Options{Runner: runner, Environ: []string{"HOME=/home/test"}, RunID: "run-1"}
	for _, fn := range opts {
		fn(&o)
	}
	res, err := New(o).Execute(ctx, g)
	require.NoError(t, err)
	return res
}

func jobResult(t *testing.T, res *model.ExecutionResult, stage, job string) *model.JobResult {
	t.Helper()
	jr, ok := res.Job(stage, job)
	require.True(t, ok, "job %s.%s not in result", stage, job)
	return jr
}

func withCondition(j *model.Job, cond string) *model.Job {
	j.Condition = cond
	return j
}

func TestExecute_FailedConditionRunsAfterFailure(t *testing.T) {
	// --- Arrange ---
	p := testutil.Pipeline(testutil.Stage("s", nil,
		testutil.Job("A", nil, testutil.Script("a", "exit 1")),
		withCondition(testutil.Job("B", []string{"A"}, testutil.Script("b", "echo b")), "failed()"),
	))
	runner := testutil.NewFakeRunner().On("s/A/a", fail)

	// --- Act ---
	res := execute(t, context.Background(), p, runner)

	// --- Assert ---
	assert.True(t, runner.Ran("s/B/b"))
	assert.Equal(t, model.StatusFailed, jobResult(t, res, "s", "A").Status)
	assert.Equal(t, model.StatusSuccess, jobResult(t, res, "s", "B").Status)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, []string{"s.A"}, res.FailedNodes())
}

func TestExecute_ConditionsAgainstFailedDependency(t *testing.T) {
	testCases := []struct {
		name      string
		condition string
		wantRun   bool
	}{
		{name: "default condition skips", condition: "", wantRun: false},
		{name: "succeeded skips", condition: "succeeded()", wantRun: false},
		{name: "always runs", condition: "always()", wantRun: true},
		{name: "succeededOrFailed runs", condition: "succeededOrFailed()", wantRun: true},
		{name: "named failed runs", condition: "failed('A')", wantRun: true},
		{name: "result reference", condition: "eq(dependencies.A.result, 'Failed')", wantRun: true},
		{name: "canceled is false", condition: "canceled()", wantRun: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := testutil.Pipeline(testutil.Stage("s", nil,
				testutil.Job("A", nil, testutil.Script("a", "exit 1")),
				withCondition(testutil.Job("B", []string{"A"}, testutil.Script("b", "echo b")), tc.condition),
			))
			runner := testutil.NewFakeRunner().On("s/A/a", fail)

			res := execute(t, context.Background(), p, runner)

			assert.Equal(t, tc.wantRun, runner.Ran("s/B/b"))
			b := jobResult(t, res, "s", "B")
			if tc.wantRun {
				assert.Equal(t, model.StatusSuccess, b.Status)
			} else {
				assert.Equal(t, model.StatusSkipped, b.Status)
				assert.Equal(t, model.ResultSkipped, b.Result())
			}
		})
	}
}

func TestExecute_DependenciesAreDirect(t *testing.T) {
	testCases := []struct {
		name      string
		condition string
		wantRun   bool
	}{
		{name: "direct dependency resolves", condition: "eq(dependencies.B.result, 'Succeeded')", wantRun: true},
		{name: "indirect ancestor is undefined", condition: "eq(dependencies.A.result, 'Succeeded')", wantRun: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			p := testutil.Pipeline(testutil.Stage("s", nil,
				testutil.Job("A", nil, testutil.Script("a", "echo a")),
				testutil.Job("B", []string{"A"}, testutil.Script("b", "echo b")),
				withCondition(testutil.Job("C", []string{"B"}, testutil.Script("c", "echo c")), tc.condition),
			))
			runner := testutil.NewFakeRunner()

			// --- Act ---
			res := execute(t, context.Background(), p, runner)

			// --- Assert ---
			assert.Equal(t, tc.wantRun, runner.Ran("s/C/c"))
			c := jobResult(t, res, "s", "C")
			if tc.wantRun {
				assert.Equal(t, model.StatusSuccess, c.Status)
			} else {
				assert.Equal(t, model.StatusFailed, c.Status)
				assert.Contains(t, c.Error, "'dependencies.A' is not defined")
			}
		})
	}
}

func TestExecute_ConditionErrorFailsNode(t *testing.T) {
	p := testutil.Pipeline(testutil.Stage("s", nil,
		withCondition(testutil.Job("A", nil, testutil.Script("a", "echo a")), "eq(variables.missing"),
		withCondition(testutil.Job("B", nil, testutil.Script("b", "echo b")), "eq(nope.value, 1)"),
	))
	runner := testutil.NewFakeRunner()

	res := execute(t, context.Background(), p, runner)

	for _, name := range []string{"A", "B"} {
		jr := jobResult(t, res, "s", name)
		assert.Equal(t, model.StatusFailed, jr.Status)
		assert.True(t, strings.HasPrefix(jr.Error, "condition \""), jr.Error)
	}
	assert.Empty(t, runner.Calls())
	assert.Equal(t, model.StatusFailed, res.Status)
}

func TestExecute_StepFailureHandling(t *testing.T) {
	testCases := []struct {
		name        string
		continueErr bool
		condition   string
		wantSecond  model.Status
		wantJob     model.Status
		wantResult  string
	}{
		{
			name:       "failure skips remaining steps",
			wantSecond: model.StatusSkipped,
			wantJob:    model.StatusFailed,
			wantResult: model.ResultFailed,
		},
		{
			name:        "continueOnError keeps going",
			continueErr: true,
			wantSecond:  model.StatusSuccess,
			wantJob:     model.StatusSuccess,
			wantResult:  model.ResultSucceededWithIssues,
		},
		{
			name:       "always step runs after failure",
			condition:  "always()",
			wantSecond: model.StatusSuccess,
			wantJob:    model.StatusFailed,
			wantResult: model.ResultFailed,
		},
		{
			name:       "failed step condition sees job status",
			condition:  "failed()",
			wantSecond: model.StatusSuccess,
			wantJob:    model.StatusFailed,
			wantResult: model.ResultFailed,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			first := testutil.Script("first", "exit 1")
			first.ContinueOnError = tc.continueErr
			second := testutil.Script("second", "echo second")
			second.Condition = tc.condition
			p := testutil.Pipeline(testutil.Stage("s", nil, testutil.Job("j", nil, first, second)))
			runner := testutil.NewFakeRunner().On("s/j/first", fail)

			res := execute(t, context.Background(), p, runner)

			jr := jobResult(t, res, "s", "j")
			require.Len(t, jr.Steps, 2)
			assert.Equal(t, model.StatusFailed, jr.Steps[0].Status)
			assert.Equal(t, "exit code 1", jr.Steps[0].Error)
			assert.Equal(t, tc.wantSecond, jr.Steps[1].Status)
			assert.Equal(t, tc.wantSecond == model.StatusSuccess, runner.Ran("s/j/second"))
			assert.Equal(t, tc.wantJob, jr.Status)
			assert.Equal(t, tc.wantResult, jr.Result())
		})
	}
}

func TestExecute_ContinueOnErrorJob(t *testing.T) {
	a := testutil.Job("A", nil, testutil.Script("a", "exit 3"))
	a.ContinueOnError = true
	p := testutil.Pipeline(testutil.Stage("s", nil,
		a,
		testutil.Job("B", []string{"A"}, testutil.Script("b", "echo b")),
	))
	runner := testutil.NewFakeRunner().On("s/A/a", testutil.FakeResponse{ExitCode: 3})

	res := execute(t, context.Background(), p, runner)

	ja := jobResult(t, res, "s", "A")
	assert.Equal(t, model.StatusFailed, ja.Status)
	assert.Equal(t, model.ResultSucceededWithIssues, ja.Result())
	assert.True(t, runner.Ran("s/B/b"))
	stage, _ := res.Stage("s")
	assert.Equal(t, model.StatusSuccess, stage.Status)
	assert.True(t, stage.WithIssues)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Empty(t, res.FailedNodes())
}

func TestExecute_StageOrderingAndSkipping(t *testing.T) {
	// --- Arrange ---
	p := testutil.Pipeline(
		testutil.Stage("build", nil, testutil.Job("compile", nil, testutil.Script("make", "make"))),
		testutil.Stage("test", nil, testutil.Job("unit", nil, testutil.Script("run", "go test"))),
		testutil.Stage("deploy", nil, testutil.Job("ship", nil, testutil.Script("push", "push"))),
	)
	runner := testutil.NewFakeRunner().On("test/unit/run", testutil.FakeResponse{ExitCode: 1, Delay: 10 * time.Millisecond})
	runner.Delay = 20 * time.Millisecond

	// --- Act ---
	res := execute(t, context.Background(), p, runner)

	// --- Assert ---
	records := runner.Records()
	assert.False(t, records["build/compile/make"].End.After(records["test/unit/run"].Start))
	assert.False(t, runner.Ran("deploy/ship/push"))

	names := make([]string, len(res.Stages))
	statuses := make([]model.Status, len(res.Stages))
	for i, s := range res.Stages {
		names[i] = s.Name
		statuses[i] = s.Status
	}
	assert.Equal(t, []string{"build", "test", "deploy"}, names)
	assert.Equal(t, []model.Status{model.StatusSuccess, model.StatusFailed, model.StatusSkipped}, statuses)
	assert.Equal(t, model.StatusSkipped, jobResult(t, res, "deploy", "ship").Status)
	assert.Equal(t, model.StatusFailed, res.Status)
}

func TestExecute_IndependentStagesRunInParallel(t *testing.T) {
	p := testutil.Pipeline(
		testutil.Stage("a", noDep, testutil.Job("j", nil, testutil.Script("s", "sleep"))),
		testutil.Stage("b", noDep, testutil.Job("j", nil, testutil.Script("s", "sleep"))),
		testutil.Stage("c", []string{"a", "b"}, testutil.Job("j", nil, testutil.Script("s", "echo"))),
	)
	runner := testutil.NewFakeRunner()
	runner.Delay = 100 * time.Millisecond

	res := execute(t, context.Background(), p, runner)

	records := runner.Records()
	assert.True(t, records["a/j/s"].Overlaps(records["b/j/s"]))
	assert.False(t, records["c/j/s"].Start.Before(records["a/j/s"].End))
	assert.False(t, records["c/j/s"].Start.Before(records["b/j/s"].End))
	assert.Equal(t, model.StatusSuccess, res.Status)
}

func TestExecute_StageDependencies(t *testing.T) {
	producer := testutil.Script("emit", "echo")
	p := testutil.Pipeline(
		testutil.Stage("a", nil, testutil.Job("j", nil, producer)),
		testutil.Stage("b", nil,
			withCondition(testutil.Job("check", nil, testutil.Script("s", "echo")),
				"and(eq(stageDependencies.a.j.result, 'Succeeded'), eq(stageDependencies.a.j.outputs['emit.ver'], '7'))"),
		),
	)
	p.Stages[1].Condition = "eq(dependencies.a.outputs['j.emit.ver'], '7')"
	runner := testutil.NewFakeRunner().On("a/j/emit", testutil.FakeResponse{
		Stdout: "##vso[task.setvariable variable=ver;isOutput=true]7\n",
	})

	res := execute(t, context.Background(), p, runner)

	assert.True(t, runner.Ran("b/check/s"))
	assert.Equal(t, model.StatusSuccess, res.Status)
}

func countMaxOverlap(records map[string]testutil.ExecutionRecord, prefix string) int {
	var rs []testutil.ExecutionRecord
	for k, r := range records {
		if strings.HasPrefix(k, prefix) {
			rs = append(rs, r)
		}
	}
	best := 0
	for _, r := range rs {
		n := 0
		for _, o := range rs {
			if !o.Start.After(r.Start) && o.End.After(r.Start) {
				n++
			}
		}
		best = max(best, n)
	}
	return best
}

func matrixJob(name string, maxParallel int) *model.Job {
	j := testutil.Job(name, nil, testutil.Script("s", "echo $OS-$ARCH"))
	j.Strategy = &model.Strategy{
		MaxParallel: maxParallel,
		Matrix: &model.Matrix{Dimensions: []model.Dimension{
			{Name: "os", Values: []string{"linux", "windows"}},
			{Name: "arch", Values: []string{"x64", "arm64"}},
		}},
	}
	return j
}

func TestExecute_Matrix(t *testing.T) {
	// --- Arrange ---
	p := testutil.Pipeline(testutil.Stage("s", nil,
		matrixJob("build", 0),
		testutil.Job("publish", []string{"build"}, testutil.Script("s", "echo done")),
	))
	runner := testutil.NewFakeRunner()
	runner.Delay = 50 * time.Millisecond

	// --- Act ---
	res := execute(t, context.Background(), p, runner)

	// --- Assert ---
	stage, ok := res.Stage("s")
	require.True(t, ok)
	require.Len(t, stage.Jobs, 5)
	want := map[string][2]string{
		"build.linux_x64":     {"linux", "x64"},
		"build.linux_arm64":   {"linux", "arm64"},
		"build.windows_x64":   {"windows", "x64"},
		"build.windows_arm64": {"windows", "arm64"},
	}
	for _, cmd := range runner.Calls() {
		job := testutil.Env(cmd, EnvJobName)
		if pair, ok := want[job]; ok {
			assert.Equal(t, pair[0], testutil.Env(cmd, "OS"), job)
			assert.Equal(t, pair[1], testutil.Env(cmd, "ARCH"), job)
		}
	}
	for name := range want {
		jr := jobResult(t, res, "s", name)
		assert.Equal(t, model.StatusSuccess, jr.Status)
		assert.Equal(t, "build", jr.Template)
	}
	assert.Equal(t, 4, countMaxOverlap(runner.Records(), "s/build."))

	records := runner.Records()
	for name := range want {
		assert.False(t, records["s/publish/s"].Start.Before(records["s/"+name+"/s"].End))
	}
}

func TestExecute_MatrixLegFailureFailsTemplate(t *testing.T) {
	p := testutil.Pipeline(testutil.Stage("s", nil,
		matrixJob("build", 0),
		testutil.Job("publish", []string{"build"}, testutil.Script("s", "echo done")),
		withCondition(testutil.Job("report", []string{"build"}, testutil.Script("s", "echo")), "eq(dependencies.build.result, 'Failed')"),
	))
	runner := testutil.NewFakeRunner().On("s/build.windows_arm64/s", fail)

	res := execute(t, context.Background(), p, runner)

	assert.Equal(t, model.StatusFailed, jobResult(t, res, "s", "build.windows_arm64").Status)
	assert.Equal(t, model.StatusSuccess, jobResult(t, res, "s", "build.linux_x64").Status)
	assert.Equal(t, model.StatusSkipped, jobResult(t, res, "s", "publish").Status)
	assert.True(t, runner.Ran("s/report/s"))
}

func TestExecute_ConcurrencyCaps(t *testing.T) {
	testCases := []struct {
		name        string
		workers     int
		maxParallel int
		want        int
	}{
		{name: "maxParallel 1 serializes instances", workers: 10, maxParallel: 1, want: 1},
		{name: "maxParallel 2", workers: 10, maxParallel: 2, want: 2},
		{name: "global workers cap", workers: 3, maxParallel: 0, want: 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := testutil.Pipeline(testutil.Stage("s", nil, matrixJob("build", tc.maxParallel), matrixJob("other", 0)))
			runner := testutil.NewFakeRunner()
			runner.Delay = 40 * time.Millisecond

			res := execute(t, context.Background(), p, runner, func(o *Options) { o.Workers = tc.workers })

			assert.Equal(t, model.StatusSuccess, res.Status)
			records := runner.Records()
			if tc.maxParallel > 0 {
				assert.Equal(t, tc.want, countMaxOverlap(records, "s/build."))
			} else {
				assert.LessOrEqual(t, countMaxOverlap(records, "s/"), tc.want)
			}
			assert.Len(t, records, 8)
		})
	}
}

func TestExecute_OutputsAndRuntimeExpressions(t *testing.T) {
	// --- Arrange ---
	produce := testutil.Script("produce", "echo")
	local := testutil.Script("local", "echo $(greeting) $(produce.ver) $(unknown)")
	consume := testutil.Script("consume", "echo $[ dependencies.A.outputs['produce.ver'] ]")
	p := testutil.Pipeline(testutil.Stage("s", nil,
		testutil.Job("A", nil, produce, local),
		withCondition(testutil.Job("B", []string{"A"}, consume), "eq(dependencies.A.outputs['produce.ver'], '1.2.3')"),
	))
	runner := testutil.NewFakeRunner().On("s/A/produce", testutil.FakeResponse{
		Stdout: "building\n##vso[task.setvariable variable=ver;isOutput=true]1.2.3\n##vso[task.setvariable variable=greeting]hi\n",
	})

	// --- Act ---
	res := execute(t, context.Background(), p, runner)

	// --- Assert ---
	require.Equal(t, model.StatusSuccess, res.Status)
	assert.Equal(t, map[string]string{"produce.ver": "1.2.3"}, jobResult(t, res, "s", "A").Outputs)

	scripts := make(map[string]string)
	for _, cmd := range runner.Calls() {
		scripts[testutil.StepKey(cmd)] = cmd.Argv[len(cmd.Argv)-1]
	}
	assert.Equal(t, "echo hi 1.2.3 $(unknown)", scripts["s/A/local"])
	assert.Equal(t, "echo 1.2.3", scripts["s/B/consume"])
}

func TestExecute_Environment(t *testing.T) {
	step := testutil.Script("s", "env")
	step.Env = map[string]string{"STEP": "step", "SHARED": "step", "REF": "$(configuration)"}
	job := testutil.Job("j", nil, step)
	job.Env = map[string]string{"JOB": "job", "SHARED": "job"}
	job.Variables = map[string]string{"build.flavor": "debug"}
	p := testutil.Pipeline(testutil.Stage("s", nil, job))
	p.Env = map[string]string{"PIPE": "pipe", "SHARED": "pipe", "HOME": "/override"}
	p.Variables = map[string]string{"configuration": "release"}
	runner := testutil.NewFakeRunner()

	execute(t, context.Background(), p, runner)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	cmd := calls[0]
	assert.Equal(t, "/override", testutil.Env(cmd, "HOME"))
	assert.Equal(t, "pipe", testutil.Env(cmd, "PIPE"))
	assert.Equal(t, "job", testutil.Env(cmd, "JOB"))
	assert.Equal(t, "step", testutil.Env(cmd, "SHARED"))
	assert.Equal(t, "release", testutil.Env(cmd, "REF"))
	assert.Equal(t, "release", testutil.Env(cmd, "CONFIGURATION"))
	assert.Equal(t, "debug", testutil.Env(cmd, "BUILD_FLAVOR"))
	assert.Equal(t, "run-1", testutil.Env(cmd, EnvRunID))
	assert.Equal(t, []string{"sh", "-c", "env"}, cmd.Argv)
}

func TestExecute_JobTimeout(t *testing.T) {
	job := testutil.Job("slow", nil, testutil.Script("wait", "sleep 10"), testutil.Script("after", "echo"))
	job.Timeout = 50 * time.Millisecond
	p := testutil.Pipeline(testutil.Stage("s", nil, job))
	runner := testutil.NewFakeRunner().On("wait", testutil.FakeResponse{Delay: 5 * time.Second})

	start := time.Now()
	res := execute(t, context.Background(), p, runner)

	assert.Less(t, time.Since(start), 2*time.Second)
	jr := jobResult(t, res, "s", "slow")
	assert.Equal(t, model.StatusFailed, jr.Status)
	require.Len(t, jr.Steps, 2)
	assert.Equal(t, "timed out after 50ms", jr.Steps[0].Error)
	assert.Equal(t, model.StatusSkipped, jr.Steps[1].Status)
	assert.False(t, runner.Ran("s/slow/after"))
}

func TestExecute_Cancellation(t *testing.T) {
	// --- Arrange ---
	p := testutil.Pipeline(
		testutil.Stage("a", nil,
			testutil.Job("quick", nil, testutil.Script("s", "echo")),
			testutil.Job("slow", nil, testutil.Script("s", "sleep")),
			testutil.Job("next", []string{"slow"}, testutil.Script("s", "echo")),
		),
		testutil.Stage("b", nil, testutil.Job("later", nil, testutil.Script("s", "echo"))),
	)
	runner := testutil.NewFakeRunner().On("a/slow/s", testutil.FakeResponse{Delay: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	// --- Act ---
	res := execute(t, ctx, p, runner)

	// --- Assert ---
	assert.Equal(t, model.StatusSuccess, jobResult(t, res, "a", "quick").Status)
	slow := jobResult(t, res, "a", "slow")
	assert.Equal(t, model.StatusSkipped, slow.Status)
	assert.True(t, slow.Canceled)
	assert.Equal(t, model.ResultCanceled, slow.Result())
	assert.Equal(t, model.StatusSkipped, jobResult(t, res, "a", "next").Status)
	later := jobResult(t, res, "b", "later")
	assert.Equal(t, model.StatusSkipped, later.Status)
	assert.True(t, later.Canceled)
	assert.False(t, runner.Ran("b/later/s"))
	assert.True(t, res.Canceled)
	assert.Equal(t, model.StatusFailed, res.Status)
}

func TestExecute_EventsFollowTransitions(t *testing.T) {
	// --- Arrange ---
	store := inmemorystore.New()
	rec := &events.Recorder{}
	var missing []string
	checker := emitterFunc(func(ev model.ExecutionEvent) {
		if ev.Kind == model.EventJobCompleted {
			if _, ok := store.Get(context.Background(), nodeid.Job(ev.Stage, ev.Job)); !ok {
				missing = append(missing, ev.Job)
			}
		}
		rec.Emit(ev)
	})
	p := testutil.Pipeline(testutil.Stage("s", nil,
		testutil.Job("A", nil, testutil.Script("a", "echo")),
		testutil.Job("B", []string{"A"}, testutil.Script("b", "echo")),
	))
	runner := testutil.NewFakeRunner().On("a", testutil.FakeResponse{Stdout: "hello\n"})

	// --- Act ---
	execute(t, context.Background(), p, runner, func(o *Options) {
		o.Events = checker
		o.Store = store
	})

	// --- Assert ---
	assert.Empty(t, missing)
	assert.Equal(t, []model.EventKind{
		model.EventPipelineStarted,
		model.EventStageStarted,
		model.EventJobStarted,
		model.EventStepStarted,
		model.EventStepOutput,
		model.EventStepCompleted,
		model.EventJobCompleted,
		model.EventJobStarted,
		model.EventStepStarted,
		model.EventStepCompleted,
		model.EventJobCompleted,
		model.EventStageCompleted,
		model.EventPipelineCompleted,
	}, rec.Kinds())

	evs := rec.Events()
	assert.Equal(t, "hello\n", evs[4].Chunk)
	assert.Equal(t, model.StreamStdout, evs[4].Stream)
	last := evs[len(evs)-1]
	require.NotNil(t, last.Result)
	assert.Equal(t, model.StatusSuccess, last.Result.Status)
	for _, ev := range evs {
		assert.Equal(t, "run-1", ev.RunID)
	}
}

type emitterFunc func(model.ExecutionEvent)

func (f emitterFunc) Emit(ev model.ExecutionEvent) { f(ev) }

func TestExecute_TaskSteps(t *testing.T) {
	tasks := taskstore.New()
	require.NoError(t, tasks.LoadBytes([]byte(`
task "greet" {
  script = "echo hello $INPUT_WHO"
  input "who" {
    default = "world"
  }
}
`), "tasks.hcl"))

	greet := &model.Step{Name: "greet", Action: model.Action{Task: &model.TaskAction{
		Ref:    "greet",
		Inputs: map[string]string{"who": "$(target)"},
	}}}
	missing := &model.Step{Name: "missing", Action: model.Action{Task: &model.TaskAction{Ref: "nope"}}}
	job := testutil.Job("j", nil, greet)
	job.Variables = map[string]string{"target": "stagegrid"}
	p := testutil.Pipeline(testutil.Stage("s", nil, job, testutil.Job("k", nil, missing)))
	runner := testutil.NewFakeRunner()

	res := execute(t, context.Background(), p, runner, func(o *Options) { o.Tasks = tasks })

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "stagegrid", testutil.Env(calls[0], "INPUT_WHO"))
	assert.Equal(t, []string{"sh", "-c", "echo hello $INPUT_WHO"}, calls[0].Argv)

	k := jobResult(t, res, "s", "k")
	assert.Equal(t, model.StatusFailed, k.Status)
	assert.Contains(t, k.Steps[0].Error, taskstore.ErrTaskNotFound.Error())
}

func TestExecute_StepLogs(t *testing.T) {
	logs := logstore.New(t.TempDir())
	p := testutil.Pipeline(testutil.Stage("s", nil, testutil.Job("j", nil, testutil.Script("out", "echo"))))
	runner := testutil.NewFakeRunner().On("out", testutil.FakeResponse{Stdout: "to stdout\n", Stderr: "to stderr\n"})

	res := execute(t, context.Background(), p, runner, func(o *Options) { o.Logs = logs })

	step := jobResult(t, res, "s", "j").Steps[0]
	assert.Equal(t, logs.Path("run-1", "s", "j", 0, "out"), step.LogPath)
	assert.NoError(t, logstore.Verify(step.LogPath, step.LogDigest))
	assert.Equal(t, "to stdout\n", step.Stdout)
	assert.Equal(t, "to stderr\n", step.Stderr)
}

func TestExecute_EmptyStageSucceeds(t *testing.T) {
	p := testutil.Pipeline(testutil.Stage("empty", nil))

	res := execute(t, context.Background(), p, testutil.NewFakeRunner())

	assert.Equal(t, model.StatusSuccess, res.Status)
}

func TestStageStatus(t *testing.T) {
	job := func(s model.Status, coe, issues bool) model.JobResult {
		return model.JobResult{Status: s, ContinueOnError: coe, WithIssues: issues}
	}
	testCases := []struct {
		name       string
		jobs       []model.JobResult
		want       model.Status
		wantIssues bool
	}{
		{name: "all succeeded", jobs: []model.JobResult{job(model.StatusSuccess, false, false)}, want: model.StatusSuccess},
		{name: "one failed", jobs: []model.JobResult{job(model.StatusSuccess, false, false), job(model.StatusFailed, false, false)}, want: model.StatusFailed},
		{name: "tolerated failure", jobs: []model.JobResult{job(model.StatusFailed, true, true)}, want: model.StatusSuccess, wantIssues: true},
		{name: "all skipped", jobs: []model.JobResult{job(model.StatusSkipped, false, false), job(model.StatusSkipped, false, false)}, want: model.StatusSkipped},
		{name: "skipped and succeeded", jobs: []model.JobResult{job(model.StatusSkipped, false, false), job(model.StatusSuccess, false, false)}, want: model.StatusSuccess},
		{name: "no jobs", want: model.StatusSuccess},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, issues, _ := stageStatus(tc.jobs)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantIssues, issues)
		})
	}
}

func TestAggregateResult(t *testing.T) {
	testCases := []struct {
		in   []string
		want string
	}{
		{[]string{model.ResultSucceeded, model.ResultSucceeded}, model.ResultSucceeded},
		{[]string{model.ResultSucceeded, model.ResultFailed}, model.ResultFailed},
		{[]string{model.ResultSkipped, model.ResultSkipped}, model.ResultSkipped},
		{[]string{model.ResultSkipped, model.ResultSucceeded}, model.ResultSucceeded},
		{[]string{model.ResultSucceededWithIssues, model.ResultSucceeded}, model.ResultSucceededWithIssues},
		{[]string{model.ResultCanceled, model.ResultSucceeded}, model.ResultCanceled},
	}
	for _, tc := range testCases {
		t.Run(strings.Join(tc.in, "+"), func(t *testing.T) {
			assert.Equal(t, tc.want, aggregateResult(tc.in))
		})
	}
}

func TestParseSetVariables(t *testing.T) {
	out := "noise\r\n" +
		"##vso[task.setvariable variable=a;isOutput=true]1\r\n" +
		"##vso[task.setvariable variable=b]two words\n" +
		"##vso[task.setvariable isOutput=true]ignored\n" +
		"  ##vso[task.setvariable variable=c]indented is ignored\n"

	got := parseSetVariables(out)

	assert.Equal(t, []setVariable{
		{Name: "a", Value: "1", Output: true},
		{Name: "b", Value: "two words"},
	}, got)
}

func TestVariableEnvName(t *testing.T) {
	assert.Equal(t, "BUILD_FLAVOR", VariableEnvName("build.flavor"))
	assert.Equal(t, "MY_VAR_2", VariableEnvName("my-var 2"))
}

package executor

import (
	"context"
	"runtime"
	"strings"

	"github.com/specialistvlad/stagegrid/internal/dag"
	"github.com/specialistvlad/stagegrid/internal/expr"
	"github.com/specialistvlad/stagegrid/internal/graph"
	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/specialistvlad/stagegrid/internal/nodestore"
)

// ancestors returns every transitive dependency of id. All of them are
// terminal by the time id is ready, so they are stable to expose.
func ancestors(g *dag.Graph, id string) map[string]bool {
	seen := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		deps, err := g.Dependencies(cur)
		if err != nil {
			continue
		}
		for _, d := range deps {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}
	return seen
}

func set(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func dependency(e nodestore.Entry) expr.Dependency {
	return expr.Dependency{Result: e.Result, Outputs: e.Outputs}
}

// jobView exposes the recorded jobs of sn that include admits, keyed by
// instance name. A matrix template appears as an aggregate entry once all
// of its instances are admitted. Matrix outputs are keyed "<leg>.<name>".
func jobView(sn *graph.StageNode, snap map[string]nodestore.Entry, include func(string) bool) map[string]expr.Dependency {
	view := make(map[string]expr.Dependency)
	for _, tmpl := range sn.Templates() {
		instances, _ := sn.Instances(tmpl)
		var entries []nodestore.Entry
		complete := true
		for _, name := range instances {
			jn, _ := sn.Job(name)
			e, ok := snap[jn.Address.String()]
			if !ok || !include(name) {
				complete = false
				continue
			}
			view[name] = dependency(e)
			entries = append(entries, e)
		}
		if _, plain := view[tmpl]; plain || !complete || len(entries) == 0 {
			continue
		}
		view[tmpl] = aggregate(tmpl, instances, entries)
	}
	return view
}

func aggregate(tmpl string, instances []string, entries []nodestore.Entry) expr.Dependency {
	results := make([]string, len(entries))
	outputs := make(map[string]string)
	for i, e := range entries {
		results[i] = e.Result
		leg := strings.TrimPrefix(instances[i], tmpl+".")
		for k, v := range e.Outputs {
			outputs[leg+"."+k] = v
		}
	}
	return expr.Dependency{Result: aggregateResult(results), Outputs: outputs}
}

// aggregateResult folds several result strings into one: any failure fails
// the aggregate, it is Skipped only if everything was skipped.
func aggregateResult(results []string) string {
	var failed, canceled, issues bool
	skipped := 0
	for _, r := range results {
		switch r {
		case model.ResultFailed:
			failed = true
		case model.ResultCanceled:
			canceled = true
		case model.ResultSucceededWithIssues:
			issues = true
		case model.ResultSkipped:
			skipped++
		}
	}
	switch {
	case failed:
		return model.ResultFailed
	case canceled:
		return model.ResultCanceled
	case len(results) > 0 && skipped == len(results):
		return model.ResultSkipped
	case issues:
		return model.ResultSucceededWithIssues
	default:
		return model.ResultSucceeded
	}
}

// stageView exposes the recorded direct upstream stages of sn, and the jobs
// of every upstream stage.
func (r *run) stageView(ctx context.Context, sn *graph.StageNode) (map[string]expr.Dependency, map[string]map[string]expr.Dependency) {
	snap := r.store.Snapshot(ctx)
	direct := set(sn.DependsOn)
	stages := make(map[string]expr.Dependency)
	jobs := make(map[string]map[string]expr.Dependency)
	for name := range ancestors(r.g.Stages, sn.Name) {
		up, ok := r.g.Stage(name)
		if !ok {
			continue
		}
		if e, ok := snap[up.Address.String()]; ok && direct[name] {
			stages[name] = dependency(e)
		}
		jobs[name] = jobView(up, snap, func(string) bool { return true })
	}
	return stages, jobs
}

// baseContext carries what every expression of this run can see.
func (r *run) baseContext(ctx context.Context, scope expr.Scope) *expr.Context {
	return &expr.Context{
		Scope:      scope,
		Parameters: r.e.opts.Parameters,
		Agent: map[string]string{
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"workFolder": r.workDir,
		},
		Pipeline: map[string]string{"name": r.g.Pipeline.Name, "runId": r.id},
		Canceled: ctx.Err() != nil,
	}
}

// stageContext is the context a stage condition is evaluated against.
func (r *run) stageContext(ctx context.Context, sn *graph.StageNode) *expr.Context {
	c := r.baseContext(ctx, expr.ScopeStage)
	c.Variables = r.g.Variables(sn, nil)
	c.Stage = map[string]string{"name": sn.Name, "displayName": displayName(sn.Stage.DisplayName, sn.Name)}
	c.Dependencies, c.StageDependencies = r.stageView(ctx, sn)
	c.DirectDependencies = sn.DependsOn
	return c
}

// jobContext is the context a job condition is evaluated against. Steps
// derive theirs from it.
func (r *run) jobContext(ctx context.Context, sn *graph.StageNode, jn *graph.JobNode) *expr.Context {
	c := r.baseContext(ctx, expr.ScopeJob)
	c.Variables = r.g.Variables(sn, jn)
	c.Stage = map[string]string{"name": sn.Name, "displayName": displayName(sn.Stage.DisplayName, sn.Name)}
	c.Job = map[string]string{
		"name":        jn.Name,
		"template":    jn.Template,
		"displayName": displayName(jn.Job.DisplayName, jn.Name),
	}

	direct := set(jn.Needs)
	c.Dependencies = jobView(sn, r.store.Snapshot(ctx), func(name string) bool { return direct[name] })
	_, c.StageDependencies = r.stageView(ctx, sn)
	c.DirectDependencies = jn.DependsOn
	return c
}

func displayName(display, name string) string {
	if display != "" {
		return display
	}
	return name
}

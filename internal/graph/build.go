package graph

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/dag"
	"github.com/specialistvlad/stagegrid/internal/expr"
	"github.com/specialistvlad/stagegrid/internal/matrix"
	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/specialistvlad/stagegrid/internal/nodeid"
)

// Build constructs the execution graph for p. params are exposed to matrix
// expressions as `parameters`. On error nothing of the graph is usable.
func Build(ctx context.Context, p *model.Pipeline, params map[string]expr.Value) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Building execution graph.", "pipeline", p.Name, "stages", len(p.Stages))

	g := &Graph{
		Pipeline: p,
		Stages:   dag.New(),
		stages:   make(map[string]*StageNode, len(p.Stages)),
	}

	for _, st := range p.Stages {
		if err := g.Stages.AddNode(st.Name); err != nil {
			return nil, &GraphError{Kind: DuplicateName, Node: st.Name, Names: []string{st.Name}, Err: err}
		}
		sn, err := buildStage(p, st, params)
		if err != nil {
			return nil, err
		}
		g.stages[st.Name] = sn
		g.order = append(g.order, st.Name)
	}

	for i, st := range p.Stages {
		deps := st.DependsOn
		if deps == nil {
			deps = []string{}
			if i > 0 {
				deps = []string{p.Stages[i-1].Name}
			}
		}
		for _, d := range deps {
			if d == st.Name {
				return nil, &GraphError{Kind: CycleDetected, Node: st.Name, Cycle: []string{d, d}}
			}
			if !g.Stages.Has(d) {
				return nil, &GraphError{Kind: UnknownDependency, Node: st.Name, Names: []string{d}}
			}
			if err := g.Stages.AddEdge(d, st.Name); err != nil {
				return nil, fmt.Errorf("failed to link stage '%s' to '%s': %w", st.Name, d, err)
			}
		}
		g.stages[st.Name].DependsOn = deps
	}

	if err := g.Stages.DetectCycles(); err != nil {
		return nil, cycleError("", err)
	}

	g.analyzeConditions()
	for _, w := range g.Warnings {
		logger.Warn(w)
	}

	logger.Debug("Execution graph built.", "stages", g.Stages.Len(), "jobs", g.JobCount())
	return g, nil
}

func buildStage(p *model.Pipeline, st *model.Stage, params map[string]expr.Value) (*StageNode, error) {
	sn := &StageNode{
		Name:      st.Name,
		Stage:     st,
		Address:   nodeid.Stage(st.Name),
		Jobs:      dag.New(),
		Arena:     matrix.NewArena(),
		jobs:      make(map[string]*JobNode),
		templates: make(map[string][]string),
	}

	for _, job := range st.Jobs {
		qualified := st.Name + "." + job.Name
		if _, dup := sn.templates[job.Name]; dup {
			return nil, &GraphError{Kind: DuplicateName, Node: qualified, Names: []string{job.Name}}
		}

		ids, err := sn.Arena.Add(job, matrixContext(p, st, job, params))
		if err != nil {
			kind := InvalidMatrix
			if errors.Is(err, matrix.ErrEmptyDimension) {
				kind = EmptyMatrix
			}
			return nil, &GraphError{Kind: kind, Node: qualified, Err: err}
		}

		names := make([]string, 0, len(ids))
		for _, id := range ids {
			inst := sn.Arena.Instance(id)
			if err := sn.Jobs.AddNode(inst.Name); err != nil {
				return nil, &GraphError{Kind: DuplicateName, Node: qualified, Names: []string{inst.Name}, Err: err}
			}
			addr := nodeid.Job(st.Name, job.Name)
			if job.IsTemplate() {
				addr = nodeid.MatrixJob(st.Name, job.Name, inst.Index)
			}
			sn.jobs[inst.Name] = &JobNode{
				Name:      inst.Name,
				Template:  job.Name,
				Stage:     st.Name,
				Address:   addr,
				Job:       job,
				Instance:  inst,
				DependsOn: job.DependsOn,
			}
			sn.order = append(sn.order, inst.Name)
			names = append(names, inst.Name)
		}
		sn.templates[job.Name] = names
		sn.tmplOrder = append(sn.tmplOrder, job.Name)
	}

	for _, name := range sn.order {
		jn := sn.jobs[name]
		qualified := st.Name + "." + jn.Template
		for _, d := range jn.DependsOn {
			targets, ok := sn.templates[d]
			if !ok {
				target, found := sn.jobs[d]
				if !found {
					return nil, &GraphError{Kind: UnknownDependency, Node: qualified, Names: []string{d}}
				}
				targets = []string{target.Name}
			}
			for _, t := range targets {
				if sn.jobs[t].Template == jn.Template {
					return nil, &GraphError{Kind: CycleDetected, Node: qualified, Cycle: []string{jn.Template, jn.Template}}
				}
				if err := sn.Jobs.AddEdge(t, jn.Name); err != nil {
					return nil, fmt.Errorf("failed to link job '%s' to '%s': %w", jn.Name, t, err)
				}
				jn.Needs = append(jn.Needs, t)
			}
		}
	}

	if err := sn.Jobs.DetectCycles(); err != nil {
		return nil, cycleError(st.Name, err)
	}
	return sn, nil
}

func cycleError(node string, err error) error {
	var ce *dag.CycleError
	if errors.As(err, &ce) {
		return &GraphError{Kind: CycleDetected, Node: node, Cycle: ce.Path}
	}
	return err
}

// matrixContext is the template-scope context matrix expressions see.
func matrixContext(p *model.Pipeline, st *model.Stage, job *model.Job, params map[string]expr.Value) *expr.Context {
	vars := maps.Clone(p.Variables)
	if vars == nil {
		vars = make(map[string]string)
	}
	maps.Copy(vars, st.Variables)
	maps.Copy(vars, job.Variables)
	return &expr.Context{
		Scope:      expr.ScopeTemplate,
		Variables:  vars,
		Parameters: params,
		Pipeline:   map[string]string{"name": p.Name},
		Stage:      map[string]string{"name": st.Name},
		Job:        map[string]string{"name": job.Name},
	}
}

// analyzeConditions parses every condition and records a warning for each
// `dependencies.<name>` reference that names no known node.
func (g *Graph) analyzeConditions() {
	stageNames := make(map[string]bool, len(g.order))
	for _, name := range g.order {
		stageNames[name] = true
	}

	for _, name := range g.order {
		sn := g.stages[name]
		g.checkCondition(name, sn.Stage.Condition, func(dep string) bool { return stageNames[dep] })

		for _, tmpl := range sn.tmplOrder {
			job := sn.jobs[sn.templates[tmpl][0]].Job
			g.checkCondition(name+"."+tmpl, job.Condition, func(dep string) bool {
				if _, ok := sn.templates[dep]; ok {
					return true
				}
				_, ok := sn.jobs[dep]
				return ok
			})
		}
	}
}

func (g *Graph) checkCondition(node, condition string, known func(string) bool) {
	if strings.TrimSpace(condition) == "" {
		return
	}
	e, err := expr.Parse(condition)
	if err != nil {
		g.Warnings = append(g.Warnings, fmt.Sprintf("condition of '%s' does not parse and will fail at runtime: %v", node, err))
		return
	}

	c := expr.NewContainer()
	c.Add(e)
	for _, ref := range c.References() {
		parts := strings.SplitN(ref, ".", 3)
		if len(parts) < 2 || !strings.EqualFold(parts[0], "dependencies") {
			continue
		}
		if !known(parts[1]) {
			g.Warnings = append(g.Warnings, fmt.Sprintf("condition of '%s' references unknown dependency '%s'", node, parts[1]))
		}
	}
}

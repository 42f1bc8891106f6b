package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/expr"
	"github.com/specialistvlad/stagegrid/internal/graph"
	"github.com/specialistvlad/stagegrid/internal/pipelinefile"
	"github.com/specialistvlad/stagegrid/internal/taskstore"
)

// parameters converts the configured parameters into expression values.
func (a *App) parameters() map[string]expr.Value {
	if len(a.config.Parameters) == 0 {
		return nil
	}
	params := make(map[string]expr.Value, len(a.config.Parameters))
	for k, v := range a.config.Parameters {
		params[k] = expr.String(v)
	}
	return params
}

// LoadGraph parses the pipeline file, applies variable overrides, resolves
// template expressions and builds the execution graph.
func (a *App) LoadGraph(ctx context.Context) (*graph.Graph, error) {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading pipeline...", "path", a.config.PipelinePath)

	p, err := pipelinefile.Parse(a.config.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}
	if p.Name == "" {
		p.Name = pipelinefile.NameFromPath(a.config.PipelinePath)
	}
	if len(a.config.Variables) > 0 {
		if p.Variables == nil {
			p.Variables = make(map[string]string, len(a.config.Variables))
		}
		for k, v := range a.config.Variables {
			p.Variables[k] = v
		}
	}

	params := a.parameters()
	if err := pipelinefile.ResolveTemplates(p, params); err != nil {
		return nil, fmt.Errorf("failed to resolve template expressions: %w", err)
	}

	g, err := graph.Build(ctx, p, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build execution graph: %w", err)
	}
	for _, w := range g.Warnings {
		logger.Warn("Pipeline check.", "warning", w)
	}
	logger.Info("Pipeline loaded.", "pipeline", p.Name, "stages", g.Stages.Len(), "jobs", g.JobCount())
	return g, nil
}

// LoadTasks loads the task manifests, or returns nil when no tasks path is
// configured.
func (a *App) LoadTasks(ctx context.Context) (*taskstore.Store, error) {
	if a.config.TasksPath == "" {
		return nil, nil
	}
	tasks, err := taskstore.Load(a.context(ctx), a.config.TasksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load task manifests: %w", err)
	}
	return tasks, nil
}

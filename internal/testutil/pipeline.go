package testutil

import "github.com/specialistvlad/stagegrid/internal/model"

// Pipeline assembles a pipeline from stages.
func Pipeline(stages ...*model.Stage) *model.Pipeline {
	return &model.Pipeline{Name: "test", Stages: stages}
}

// Stage builds a stage. A nil deps means "previous stage".
func Stage(name string, deps []string, jobs ...*model.Job) *model.Stage {
	return &model.Stage{Name: name, DependsOn: deps, Jobs: jobs}
}

// Job builds a job with the given steps.
func Job(name string, deps []string, steps ...*model.Step) *model.Job {
	return &model.Job{Name: name, DependsOn: deps, Steps: steps}
}

// Script builds a shell step.
func Script(name, script string) *model.Step {
	return &model.Step{Name: name, Action: model.Action{Shell: &model.ShellAction{Script: script}}}
}

// Command builds a command step.
func Command(name string, argv ...string) *model.Step {
	return &model.Step{Name: name, Action: model.Action{Command: &model.CommandAction{Argv: argv}}}
}

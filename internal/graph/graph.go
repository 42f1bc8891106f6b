package graph

import (
	"maps"

	"github.com/specialistvlad/stagegrid/internal/dag"
	"github.com/specialistvlad/stagegrid/internal/matrix"
	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/specialistvlad/stagegrid/internal/nodeid"
)

// Graph is the execution graph of one pipeline. Its structure is fixed once
// Build returns; the dag nodes carry the only mutable state, their status.
type Graph struct {
	Pipeline *model.Pipeline
	// Stages is the stage-level DAG keyed by stage name.
	Stages *dag.Graph
	// Warnings collects non-fatal findings, such as conditions that reference
	// unknown dependencies.
	Warnings []string

	stages map[string]*StageNode
	order  []string
}

// StageNode is one stage with its own job-level DAG.
type StageNode struct {
	Name    string
	Stage   *model.Stage
	Address nodeid.Address
	// DependsOn holds the resolved stage dependencies, defaults applied.
	DependsOn []string
	// Jobs is the job-level DAG keyed by instance name.
	Jobs *dag.Graph
	// Arena stores the job templates and their expanded instances.
	Arena *matrix.Arena

	jobs      map[string]*JobNode
	order     []string
	templates map[string][]string
	tmplOrder []string
}

// JobNode is one schedulable job instance.
type JobNode struct {
	// Name is the instance name: the job name, or "<job>.<combo>" for matrix
	// instances.
	Name     string
	Template string
	Stage    string
	Address  nodeid.Address
	Job      *model.Job
	Instance *matrix.Instance
	// DependsOn holds the dependency names as declared on the job. Status
	// functions called without arguments consult these.
	DependsOn []string
	// Needs holds the resolved instance names this node waits for.
	Needs []string
}

// Stage returns the stage node with the given name.
func (g *Graph) Stage(name string) (*StageNode, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// StageNodes returns every stage in declaration order.
func (g *Graph) StageNodes() []*StageNode {
	out := make([]*StageNode, len(g.order))
	for i, name := range g.order {
		out[i] = g.stages[name]
	}
	return out
}

// JobCount returns the number of job instances across all stages.
func (g *Graph) JobCount() int {
	n := 0
	for _, s := range g.stages {
		n += len(s.order)
	}
	return n
}

// Job returns the job instance with the given name.
func (s *StageNode) Job(name string) (*JobNode, bool) {
	j, ok := s.jobs[name]
	return j, ok
}

// JobNodes returns every job instance in declaration order; instances of one
// template are contiguous and ordered by matrix index.
func (s *StageNode) JobNodes() []*JobNode {
	out := make([]*JobNode, len(s.order))
	for i, name := range s.order {
		out[i] = s.jobs[name]
	}
	return out
}

// Templates returns the declared job names in order.
func (s *StageNode) Templates() []string {
	return s.tmplOrder
}

// Instances returns the instance names expanded from a job template.
func (s *StageNode) Instances(template string) ([]string, bool) {
	names, ok := s.templates[template]
	return names, ok
}

// Variables returns the variables visible to a job instance: pipeline
// variables, then stage variables, then the instance's own merged variables.
func (g *Graph) Variables(s *StageNode, j *JobNode) map[string]string {
	vars := maps.Clone(g.Pipeline.Variables)
	if vars == nil {
		vars = make(map[string]string)
	}
	maps.Copy(vars, s.Stage.Variables)
	if j != nil {
		maps.Copy(vars, j.Instance.Variables)
	}
	return vars
}

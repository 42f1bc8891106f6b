package expr

import (
	"sort"
	"strings"
)

// Scope identifies what kind of node an expression is evaluated for. It
// selects the meaning of the argument-less status functions.
type Scope int

const (
	// ScopeTemplate is used while expanding ${{ }} before the graph exists.
	ScopeTemplate Scope = iota
	// ScopeStage evaluates a stage condition.
	ScopeStage
	// ScopeJob evaluates a job condition or a matrix expression.
	ScopeJob
	// ScopeStep evaluates a step condition or runtime interpolation.
	ScopeStep
)

// Dependency is the observable state of a finished node.
type Dependency struct {
	Result  string
	Outputs map[string]string
}

func (d Dependency) value() Value {
	return Map(map[string]Value{
		"result":  String(d.Result),
		"outputs": StringMap(d.Outputs),
	})
}

// Context is the read-only view an expression is evaluated against. The
// executor builds a fresh Context immediately before each evaluation so that
// dependency results are always current.
type Context struct {
	Scope Scope

	Variables  map[string]string
	Parameters map[string]Value
	Agent      map[string]string
	Pipeline   map[string]string
	// Stage and Job describe the node being evaluated (name, status, ...).
	Stage map[string]string
	Job   map[string]string

	// Dependencies holds the finished nodes visible to this node, keyed by
	// name: stages for a stage, jobs of the same stage for a job.
	Dependencies map[string]Dependency
	// StageDependencies exposes jobs of upstream stages: stage -> job -> state.
	StageDependencies map[string]map[string]Dependency
	Resources         map[string]Value

	// DirectDependencies names the entries of Dependencies that the status
	// functions consult when called without arguments.
	DirectDependencies []string
	// JobStatus is the result string of the enclosing job so far; it is what
	// status functions consult in ScopeStep.
	JobStatus string
	// Canceled is set once the run has been asked to stop.
	Canceled bool
}

var emptyContext = &Context{}

// Variable returns a variable by name, ignoring case.
func (c *Context) Variable(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	if v, ok := c.Variables[name]; ok {
		return v, true
	}
	for _, k := range sortedKeys(c.Variables) {
		if strings.EqualFold(k, name) {
			return c.Variables[k], true
		}
	}
	return "", false
}

// Dependency finds a dependency by name, ignoring case.
func (c *Context) Dependency(name string) (Dependency, bool) {
	if d, ok := c.Dependencies[name]; ok {
		return d, true
	}
	for k, d := range c.Dependencies {
		if strings.EqualFold(k, name) {
			return d, true
		}
	}
	return Dependency{}, false
}

// base returns the sub-context for a reference's base identifier.
func (c *Context) base(name string) (Value, bool) {
	switch strings.ToLower(name) {
	case "variables":
		return StringMap(c.Variables), true
	case "parameters":
		return Map(c.Parameters), true
	case "agent":
		return StringMap(c.Agent), true
	case "pipeline":
		return StringMap(c.Pipeline), true
	case "stage":
		return StringMap(c.Stage), true
	case "job":
		return StringMap(c.Job), true
	case "dependencies":
		deps := make(map[string]Value, len(c.Dependencies))
		for k, d := range c.Dependencies {
			deps[k] = d.value()
		}
		return Map(deps), true
	case "stagedependencies":
		stages := make(map[string]Value, len(c.StageDependencies))
		for stage, jobs := range c.StageDependencies {
			m := make(map[string]Value, len(jobs))
			for job, d := range jobs {
				m[job] = d.value()
			}
			stages[stage] = Map(m)
		}
		return Map(stages), true
	case "resources":
		return Map(c.Resources), true
	default:
		return Value{}, false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

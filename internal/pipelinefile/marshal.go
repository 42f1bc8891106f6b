package pipelinefile

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/stagegrid/internal/model"
)

// Marshal encodes p as canonical YAML: the full stages form, keys in a fixed
// order, map entries sorted, scripts with newlines in literal style. Source
// is not encoded.
func Marshal(p *model.Pipeline) ([]byte, error) {
	root := mapping()
	root.add("name", str(p.Name))
	root.add("description", str(p.Description))
	root.add("variables", stringMap(p.Variables))
	root.add("env", stringMap(p.Env))

	stages := &yaml.Node{Kind: yaml.SequenceNode}
	for _, st := range p.Stages {
		n, err := stageNode(st)
		if err != nil {
			return nil, err
		}
		stages.Content = append(stages.Content, n)
	}
	root.force("stages", stages)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode((*yaml.Node)(root)); err != nil {
		return nil, fmt.Errorf("failed to encode pipeline: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode pipeline: %w", err)
	}
	return buf.Bytes(), nil
}

func stageNode(st *model.Stage) (*yaml.Node, error) {
	n := mapping()
	n.force("stage", scalar(st.Name))
	n.add("displayName", str(st.DisplayName))
	if st.DependsOn != nil {
		n.force("dependsOn", list(st.DependsOn))
	}
	n.add("condition", str(st.Condition))
	n.add("variables", stringMap(st.Variables))

	jobs := &yaml.Node{Kind: yaml.SequenceNode}
	for _, j := range st.Jobs {
		jn, err := jobNode(j)
		if err != nil {
			return nil, fmt.Errorf("stage '%s': %w", st.Name, err)
		}
		jobs.Content = append(jobs.Content, jn)
	}
	n.force("jobs", jobs)
	return (*yaml.Node)(n), nil
}

func jobNode(j *model.Job) (*yaml.Node, error) {
	n := mapping()
	n.force("job", scalar(j.Name))
	n.add("displayName", str(j.DisplayName))
	if len(j.DependsOn) > 0 {
		n.force("dependsOn", list(j.DependsOn))
	}
	n.add("condition", str(j.Condition))
	if j.ContinueOnError {
		n.force("continueOnError", boolean(true))
	}
	if j.Timeout > 0 {
		n.force("timeout", str(j.Timeout.String()))
	}
	n.add("env", stringMap(j.Env))
	n.add("variables", stringMap(j.Variables))
	if j.Strategy != nil {
		sn, err := strategyNode(j.Strategy)
		if err != nil {
			return nil, fmt.Errorf("job '%s': %w", j.Name, err)
		}
		n.force("strategy", sn)
	}

	steps := &yaml.Node{Kind: yaml.SequenceNode}
	for _, s := range j.Steps {
		sn, err := stepNode(s)
		if err != nil {
			return nil, fmt.Errorf("job '%s': %w", j.Name, err)
		}
		steps.Content = append(steps.Content, sn)
	}
	n.force("steps", steps)
	return (*yaml.Node)(n), nil
}

func strategyNode(s *model.Strategy) (*yaml.Node, error) {
	n := mapping()
	if s.Matrix != nil {
		m := s.Matrix
		switch {
		case m.Expr != "":
			n.force("matrix", str(m.Expr))
		case len(m.Legs) > 0:
			legs := mapping()
			for _, leg := range m.Legs {
				vars := stringMap(leg.Variables)
				if vars == nil {
					vars = (*yaml.Node)(mapping())
				}
				legs.force(leg.Name, vars)
			}
			n.force("matrix", (*yaml.Node)(legs))
		case len(m.Dimensions) > 0:
			dims := mapping()
			for _, d := range m.Dimensions {
				if d.Expr != "" {
					dims.force(d.Name, scalar(d.Expr))
				} else {
					dims.force(d.Name, list(d.Values))
				}
			}
			n.force("matrix", (*yaml.Node)(dims))
		default:
			return nil, fmt.Errorf("matrix declares no dimensions")
		}
	}
	if s.MaxParallel > 0 {
		n.force("maxParallel", integer(s.MaxParallel))
	}
	return (*yaml.Node)(n), nil
}

func stepNode(s *model.Step) (*yaml.Node, error) {
	n := mapping()
	a := s.Action
	switch {
	case a.Shell != nil:
		n.force("script", script(a.Shell.Script))
		n.add("interpreter", str(a.Shell.Interpreter))
	case a.Command != nil:
		n.force("command", list(a.Command.Argv))
	case a.Task != nil:
		n.force("task", scalar(a.Task.Ref))
		n.add("inputs", stringMap(a.Task.Inputs))
	default:
		return nil, fmt.Errorf("step '%s' has no action", s.Name)
	}
	n.add("name", str(s.Name))
	n.add("displayName", str(s.DisplayName))
	n.add("env", stringMap(s.Env))
	n.add("condition", str(s.Condition))
	if s.ContinueOnError {
		n.force("continueOnError", boolean(true))
	}
	return (*yaml.Node)(n), nil
}

// node is a mapping under construction.
type node yaml.Node

func mapping() *node {
	return &node{Kind: yaml.MappingNode}
}

// add appends key: v unless v is nil.
func (n *node) add(key string, v *yaml.Node) {
	if v != nil {
		n.force(key, v)
	}
}

func (n *node) force(key string, v *yaml.Node) {
	n.Content = append(n.Content, scalar(key), v)
}

// str returns nil for the empty string so optional fields are omitted.
func str(s string) *yaml.Node {
	if s == "" {
		return nil
	}
	return scalar(s)
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func script(s string) *yaml.Node {
	n := scalar(s)
	// Literal style cannot represent trailing spaces on a line.
	if strings.Contains(s, "\n") && !strings.Contains(s, " \n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}

func boolean(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

func integer(i int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(i)}
}

func list(items []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, item := range items {
		n.Content = append(n.Content, scalar(item))
	}
	return n
}

// stringMap returns nil for an empty map and sorts keys otherwise.
func stringMap(m map[string]string) *yaml.Node {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	n := mapping()
	for _, k := range keys {
		n.force(k, scalar(m[k]))
	}
	return (*yaml.Node)(n)
}

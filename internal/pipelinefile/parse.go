package pipelinefile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/stagegrid/internal/model"
)

// Extensions lists the file extensions Parse understands.
var Extensions = []string{".yml", ".yaml", ".json", ".jsonc"}

// Parse reads and decodes the pipeline file at path. The returned pipeline
// records path as its Source.
func Parse(path string) (*model.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	p, err := ParseBytes(path, data)
	if err != nil {
		return nil, err
	}
	p.Source = path
	return p, nil
}

// ParseBytes decodes a pipeline from data. name is used for error messages
// and to select the format by extension; anything that is not .json or
// .jsonc is read as YAML.
func ParseBytes(name string, data []byte) (*model.Pipeline, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc":
		// The JSONC stripper blanks comments in place, so offsets and
		// therefore line numbers are unchanged.
		data = jsonc.ToJSON(data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Path: name, Err: ErrEmptyDocument}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: name, Err: err}
	}
	if len(doc.Content) == 0 {
		return nil, &ParseError{Path: name, Err: ErrEmptyDocument}
	}

	d := &decoder{path: name}
	return d.pipeline(doc.Content[0])
}

// decoder walks a yaml node tree. Every error it returns is a *ParseError.
type decoder struct {
	path string
}

func (d *decoder) errorf(n *yaml.Node, format string, args ...any) error {
	return &ParseError{Path: d.path, Line: n.Line, Column: n.Column, Err: fmt.Errorf(format, args...)}
}

// fields iterates a mapping node, rejecting keys not in allowed.
func (d *decoder) fields(n *yaml.Node, what string, allowed []string, fn func(key string, v *yaml.Node) error) error {
	if n.Kind != yaml.MappingNode {
		return d.errorf(n, "%s must be a mapping", what)
	}
	seen := make(map[string]bool, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if !contains(allowed, k.Value) {
			return d.errorf(k, "unknown field '%s' in %s", k.Value, what)
		}
		if seen[k.Value] {
			return d.errorf(k, "duplicate field '%s' in %s", k.Value, what)
		}
		seen[k.Value] = true
		if err := fn(k.Value, v); err != nil {
			return err
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func (d *decoder) str(n *yaml.Node, what string) (string, error) {
	if isNull(n) {
		return "", nil
	}
	if n.Kind != yaml.ScalarNode {
		return "", d.errorf(n, "%s must be a string", what)
	}
	return n.Value, nil
}

func (d *decoder) boolean(n *yaml.Node, what string) (bool, error) {
	if isNull(n) {
		return false, nil
	}
	var b bool
	if n.Kind != yaml.ScalarNode || n.Decode(&b) != nil {
		return false, d.errorf(n, "%s must be true or false", what)
	}
	return b, nil
}

func (d *decoder) integer(n *yaml.Node, what string) (int, error) {
	var i int
	if n.Kind != yaml.ScalarNode || n.Decode(&i) != nil {
		return 0, d.errorf(n, "%s must be an integer", what)
	}
	if i < 0 {
		return 0, d.errorf(n, "%s must not be negative", what)
	}
	return i, nil
}

// strings accepts a scalar or a sequence of scalars. An explicit empty
// sequence yields a non-nil empty slice.
func (d *decoder) strings(n *yaml.Node, what string) ([]string, error) {
	switch {
	case isNull(n):
		return []string{}, nil
	case n.Kind == yaml.ScalarNode:
		return []string{n.Value}, nil
	case n.Kind == yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, d.errorf(item, "%s entries must be strings", what)
			}
			out = append(out, item.Value)
		}
		return out, nil
	default:
		return nil, d.errorf(n, "%s must be a string or a list of strings", what)
	}
}

// stringMap decodes a mapping of scalars. An empty mapping yields nil.
func (d *decoder) stringMap(n *yaml.Node, what string) (map[string]string, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, d.errorf(n, "%s must be a mapping", what)
	}
	if len(n.Content) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, d.errorf(v, "%s value '%s' must be a scalar", what, k.Value)
		}
		if isNull(v) {
			out[k.Value] = ""
			continue
		}
		out[k.Value] = v.Value
	}
	return out, nil
}

// variables accepts a mapping or a list of {name, value} entries.
func (d *decoder) variables(n *yaml.Node) (map[string]string, error) {
	if n.Kind != yaml.SequenceNode {
		return d.stringMap(n, "variables")
	}
	if len(n.Content) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(n.Content))
	for _, item := range n.Content {
		var name, value string
		err := d.fields(item, "variable", []string{"name", "value"}, func(key string, v *yaml.Node) error {
			s, err := d.str(v, "variable "+key)
			if key == "name" {
				name = s
			} else {
				value = s
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, d.errorf(item, "variable requires a name")
		}
		out[name] = value
	}
	return out, nil
}

var pipelineFields = []string{"name", "description", "variables", "env", "stages", "jobs", "steps"}

func (d *decoder) pipeline(n *yaml.Node) (*model.Pipeline, error) {
	p := &model.Pipeline{}
	var stages, jobs, steps *yaml.Node
	err := d.fields(n, "pipeline", pipelineFields, func(key string, v *yaml.Node) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.str(v, "name")
		case "description":
			p.Description, err = d.str(v, "description")
		case "variables":
			p.Variables, err = d.variables(v)
		case "env":
			p.Env, err = d.stringMap(v, "env")
		case "stages":
			stages = v
		case "jobs":
			jobs = v
		case "steps":
			steps = v
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	given := 0
	for _, v := range []*yaml.Node{stages, jobs, steps} {
		if v != nil {
			given++
		}
	}
	if given != 1 {
		return nil, d.errorf(n, "pipeline must have exactly one of stages, jobs or steps")
	}

	switch {
	case stages != nil:
		if stages.Kind != yaml.SequenceNode {
			return nil, d.errorf(stages, "stages must be a list")
		}
		for _, item := range stages.Content {
			st, err := d.stage(item)
			if err != nil {
				return nil, err
			}
			p.Stages = append(p.Stages, st)
		}
	case jobs != nil:
		js, err := d.jobs(jobs)
		if err != nil {
			return nil, err
		}
		p.Stages = []*model.Stage{{Name: model.DefaultName, Jobs: js}}
	default:
		ss, err := d.steps(steps)
		if err != nil {
			return nil, err
		}
		job := &model.Job{Name: model.DefaultName, Steps: ss}
		p.Stages = []*model.Stage{{Name: model.DefaultName, Jobs: []*model.Job{job}}}
	}
	return p, nil
}

var stageFields = []string{"stage", "name", "displayName", "dependsOn", "condition", "variables", "jobs"}

func (d *decoder) stage(n *yaml.Node) (*model.Stage, error) {
	st := &model.Stage{}
	err := d.fields(n, "stage", stageFields, func(key string, v *yaml.Node) error {
		var err error
		switch key {
		case "stage", "name":
			if st.Name != "" {
				return d.errorf(v, "stage name given twice")
			}
			st.Name, err = d.str(v, key)
		case "displayName":
			st.DisplayName, err = d.str(v, key)
		case "dependsOn":
			st.DependsOn, err = d.strings(v, key)
		case "condition":
			st.Condition, err = d.str(v, key)
		case "variables":
			st.Variables, err = d.variables(v)
		case "jobs":
			st.Jobs, err = d.jobs(v)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if st.Name == "" {
		return nil, d.errorf(n, "stage requires a name")
	}
	return st, nil
}

func (d *decoder) jobs(n *yaml.Node) ([]*model.Job, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, "jobs must be a list")
	}
	if len(n.Content) == 0 {
		return nil, nil
	}
	out := make([]*model.Job, 0, len(n.Content))
	for _, item := range n.Content {
		j, err := d.job(item)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

var jobFields = []string{
	"job", "name", "displayName", "dependsOn", "condition", "continueOnError",
	"timeoutInMinutes", "timeout", "env", "variables", "strategy", "steps",
}

func (d *decoder) job(n *yaml.Node) (*model.Job, error) {
	j := &model.Job{}
	err := d.fields(n, "job", jobFields, func(key string, v *yaml.Node) error {
		var err error
		switch key {
		case "job", "name":
			if j.Name != "" {
				return d.errorf(v, "job name given twice")
			}
			j.Name, err = d.str(v, key)
		case "displayName":
			j.DisplayName, err = d.str(v, key)
		case "dependsOn":
			j.DependsOn, err = d.strings(v, key)
			if len(j.DependsOn) == 0 {
				j.DependsOn = nil
			}
		case "condition":
			j.Condition, err = d.str(v, key)
		case "continueOnError":
			j.ContinueOnError, err = d.boolean(v, key)
		case "timeoutInMinutes":
			var minutes int
			minutes, err = d.integer(v, key)
			j.Timeout = time.Duration(minutes) * time.Minute
		case "timeout":
			j.Timeout, err = d.duration(v, key)
		case "env":
			j.Env, err = d.stringMap(v, key)
		case "variables":
			j.Variables, err = d.variables(v)
		case "strategy":
			j.Strategy, err = d.strategy(v)
		case "steps":
			j.Steps, err = d.steps(v)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if j.Name == "" {
		return nil, d.errorf(n, "job requires a name")
	}
	return j, nil
}

func (d *decoder) duration(n *yaml.Node, what string) (time.Duration, error) {
	s, err := d.str(n, what)
	if err != nil {
		return 0, err
	}
	dur, err := time.ParseDuration(s)
	if err != nil || dur < 0 {
		return 0, d.errorf(n, "%s must be a duration such as 90s or 5m", what)
	}
	return dur, nil
}

func (d *decoder) strategy(n *yaml.Node) (*model.Strategy, error) {
	s := &model.Strategy{}
	err := d.fields(n, "strategy", []string{"matrix", "maxParallel"}, func(key string, v *yaml.Node) error {
		var err error
		switch key {
		case "matrix":
			s.Matrix, err = d.matrix(v)
		case "maxParallel":
			s.MaxParallel, err = d.integer(v, key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// matrix decodes one of three shapes: an expression string, a mapping of
// dimension name to a list (or expression), or a mapping of leg name to a
// mapping of variables.
func (d *decoder) matrix(n *yaml.Node) (*model.Matrix, error) {
	if n.Kind == yaml.ScalarNode && !isNull(n) {
		return &model.Matrix{Expr: n.Value}, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, d.errorf(n, "matrix must be a mapping or an expression")
	}
	if len(n.Content) == 0 {
		return nil, d.errorf(n, "matrix must declare at least one dimension")
	}

	m := &model.Matrix{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		switch v.Kind {
		case yaml.MappingNode:
			if len(m.Dimensions) > 0 {
				return nil, d.errorf(v, "matrix mixes legs and dimensions")
			}
			vars, err := d.stringMap(v, "matrix leg")
			if err != nil {
				return nil, err
			}
			m.Legs = append(m.Legs, model.Leg{Name: k.Value, Variables: vars})
		case yaml.SequenceNode:
			if len(m.Legs) > 0 {
				return nil, d.errorf(v, "matrix mixes legs and dimensions")
			}
			values, err := d.strings(v, "matrix dimension")
			if err != nil {
				return nil, err
			}
			m.Dimensions = append(m.Dimensions, model.Dimension{Name: k.Value, Values: values})
		case yaml.ScalarNode:
			if len(m.Legs) > 0 {
				return nil, d.errorf(v, "matrix mixes legs and dimensions")
			}
			m.Dimensions = append(m.Dimensions, model.Dimension{Name: k.Value, Expr: v.Value})
		default:
			return nil, d.errorf(v, "matrix dimension '%s' must be a list or an expression", k.Value)
		}
	}
	return m, nil
}

func (d *decoder) steps(n *yaml.Node) ([]*model.Step, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, "steps must be a list")
	}
	if len(n.Content) == 0 {
		return nil, nil
	}
	out := make([]*model.Step, 0, len(n.Content))
	for _, item := range n.Content {
		s, err := d.step(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// shellKeys map step keys to the interpreter they imply.
var shellKeys = map[string]string{"script": "", "bash": "bash", "sh": "sh", "pwsh": "pwsh"}

var stepFields = []string{
	"script", "bash", "sh", "pwsh", "command", "task",
	"interpreter", "inputs", "name", "displayName", "env", "condition", "continueOnError",
}

func (d *decoder) step(n *yaml.Node) (*model.Step, error) {
	s := &model.Step{}
	var (
		actions     []string
		interpreter string
		inputs      map[string]string
		hasInputs   bool
	)
	err := d.fields(n, "step", stepFields, func(key string, v *yaml.Node) error {
		var err error
		switch key {
		case "script", "bash", "sh", "pwsh":
			actions = append(actions, key)
			var script string
			script, err = d.str(v, key)
			s.Action.Shell = &model.ShellAction{Interpreter: shellKeys[key], Script: script}
		case "command":
			actions = append(actions, key)
			var argv []string
			if v.Kind == yaml.ScalarNode {
				argv = strings.Fields(v.Value)
			} else {
				argv, err = d.strings(v, key)
			}
			if err == nil && len(argv) == 0 {
				err = d.errorf(v, "command must not be empty")
			}
			s.Action.Command = &model.CommandAction{Argv: argv}
		case "task":
			actions = append(actions, key)
			var ref string
			ref, err = d.str(v, key)
			if err == nil && strings.TrimSpace(ref) == "" {
				err = d.errorf(v, "task reference must not be empty")
			}
			s.Action.Task = &model.TaskAction{Ref: ref}
		case "interpreter":
			interpreter, err = d.str(v, key)
		case "inputs":
			hasInputs = true
			inputs, err = d.stringMap(v, key)
		case "name":
			s.Name, err = d.str(v, key)
		case "displayName":
			s.DisplayName, err = d.str(v, key)
		case "env":
			s.Env, err = d.stringMap(v, key)
		case "condition":
			s.Condition, err = d.str(v, key)
		case "continueOnError":
			s.ContinueOnError, err = d.boolean(v, key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(actions) != 1 {
		return nil, d.errorf(n, "step must have exactly one of script, bash, sh, pwsh, command or task")
	}
	if interpreter != "" {
		if actions[0] != "script" {
			return nil, d.errorf(n, "interpreter is only valid with script")
		}
		s.Action.Shell.Interpreter = interpreter
	}
	if hasInputs {
		if s.Action.Task == nil {
			return nil, d.errorf(n, "inputs are only valid with task")
		}
		s.Action.Task.Inputs = inputs
	}
	return s, nil
}

// NameFromPath derives a pipeline name from a file path by stripping the
// directory and the extension: "ci/build.yml" becomes "build".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

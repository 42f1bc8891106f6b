package pipelinefile

import (
	"fmt"
	"maps"

	"github.com/specialistvlad/stagegrid/internal/expr"
	"github.com/specialistvlad/stagegrid/internal/model"
)

// ResolveTemplates substitutes every ${{ }} expression in p in place. The
// expressions see `variables` (pipeline variables, extended by stage and
// then job variables as the walk descends) and `parameters`. A matrix
// dimension or matrix consisting of a single ${{ }} keeps the typed result,
// so it may produce a list or an object. Runtime forms ($[ ] and $(name))
// are left for the executor.
func ResolveTemplates(p *model.Pipeline, params map[string]expr.Value) error {
	t := &templater{params: params}

	vars := maps.Clone(p.Variables)
	if vars == nil {
		vars = make(map[string]string)
	}
	// Pipeline variables may refer to their siblings.
	if err := t.strings(vars, vars, "variables"); err != nil {
		return err
	}
	if p.Variables != nil {
		p.Variables = vars
	}
	if err := t.strings(p.Env, vars, "env"); err != nil {
		return err
	}

	for _, st := range p.Stages {
		if err := t.stage(st, vars); err != nil {
			return fmt.Errorf("stage '%s': %w", st.Name, err)
		}
	}
	return nil
}

type templater struct {
	params map[string]expr.Value
}

func (t *templater) context(vars map[string]string) *expr.Context {
	return &expr.Context{Scope: expr.ScopeTemplate, Variables: vars, Parameters: t.params}
}

func (t *templater) text(s string, vars map[string]string) (string, error) {
	return expr.Interpolate(s, expr.ModeTemplate, t.context(vars))
}

// strings resolves map values in place against scope.
func (t *templater) strings(m, scope map[string]string, what string) error {
	for k, v := range m {
		s, err := t.text(v, scope)
		if err != nil {
			return fmt.Errorf("%s '%s': %w", what, k, err)
		}
		m[k] = s
	}
	return nil
}

// layer resolves own against outer and returns the merged scope.
func (t *templater) layer(own, outer map[string]string) (map[string]string, error) {
	if err := t.strings(own, outer, "variables"); err != nil {
		return nil, err
	}
	merged := maps.Clone(outer)
	if merged == nil {
		merged = make(map[string]string, len(own))
	}
	maps.Copy(merged, own)
	return merged, nil
}

func (t *templater) stage(st *model.Stage, outer map[string]string) error {
	vars, err := t.layer(st.Variables, outer)
	if err != nil {
		return err
	}
	if st.DisplayName, err = t.text(st.DisplayName, vars); err != nil {
		return fmt.Errorf("displayName: %w", err)
	}
	if st.Condition, err = t.text(st.Condition, vars); err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	for _, j := range st.Jobs {
		if err := t.job(j, vars); err != nil {
			return fmt.Errorf("job '%s': %w", j.Name, err)
		}
	}
	return nil
}

func (t *templater) job(j *model.Job, outer map[string]string) error {
	vars, err := t.layer(j.Variables, outer)
	if err != nil {
		return err
	}
	if j.DisplayName, err = t.text(j.DisplayName, vars); err != nil {
		return fmt.Errorf("displayName: %w", err)
	}
	if j.Condition, err = t.text(j.Condition, vars); err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	if err := t.strings(j.Env, vars, "env"); err != nil {
		return err
	}
	if j.Strategy != nil && j.Strategy.Matrix != nil {
		if err := t.matrix(j.Strategy.Matrix, vars); err != nil {
			return fmt.Errorf("matrix: %w", err)
		}
	}
	for i, s := range j.Steps {
		if err := t.step(s, vars); err != nil {
			name := s.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return fmt.Errorf("step '%s': %w", name, err)
		}
	}
	return nil
}

func (t *templater) matrix(m *model.Matrix, vars map[string]string) error {
	ctx := t.context(vars)
	if m.Expr != "" {
		v, whole, err := expr.TemplateValue(m.Expr, ctx)
		if err != nil {
			return err
		}
		if !whole {
			m.Expr, err = t.text(m.Expr, vars)
			return err
		}
		return setMatrix(m, v)
	}

	for i := range m.Dimensions {
		d := &m.Dimensions[i]
		for k, v := range d.Values {
			s, err := t.text(v, vars)
			if err != nil {
				return fmt.Errorf("dimension '%s': %w", d.Name, err)
			}
			d.Values[k] = s
		}
		if d.Expr == "" {
			continue
		}
		v, whole, err := expr.TemplateValue(d.Expr, ctx)
		if err != nil {
			return fmt.Errorf("dimension '%s': %w", d.Name, err)
		}
		if !whole {
			if d.Expr, err = t.text(d.Expr, vars); err != nil {
				return fmt.Errorf("dimension '%s': %w", d.Name, err)
			}
			continue
		}
		values, err := scalarList(v)
		if err != nil {
			return fmt.Errorf("dimension '%s': %w", d.Name, err)
		}
		d.Values, d.Expr = values, ""
	}

	for i := range m.Legs {
		if err := t.strings(m.Legs[i].Variables, vars, "leg '"+m.Legs[i].Name+"'"); err != nil {
			return err
		}
	}
	return nil
}

// setMatrix replaces m with the shape of a typed template result: an object
// of lists (dimensions, in key order) or an object of objects (legs).
func setMatrix(m *model.Matrix, v expr.Value) error {
	if v.Kind() != expr.KindMap {
		return fmt.Errorf("matrix template must produce an object, got %s", v.Kind())
	}
	m.Expr = ""
	for _, k := range v.Keys() {
		item, _ := v.Field(k)
		if item.Kind() == expr.KindMap {
			vars := make(map[string]string, item.Len())
			for _, vk := range item.Keys() {
				vv, _ := item.Field(vk)
				vars[vk] = vv.String()
			}
			m.Legs = append(m.Legs, model.Leg{Name: k, Variables: vars})
			continue
		}
		values, err := scalarList(item)
		if err != nil {
			return fmt.Errorf("dimension '%s': %w", k, err)
		}
		m.Dimensions = append(m.Dimensions, model.Dimension{Name: k, Values: values})
	}
	if len(m.Legs) > 0 && len(m.Dimensions) > 0 {
		return fmt.Errorf("matrix template mixes legs and dimensions")
	}
	return nil
}

// scalarList flattens a list of scalars; a lone scalar is a list of one.
func scalarList(v expr.Value) ([]string, error) {
	switch v.Kind() {
	case expr.KindSeq:
		out := make([]string, 0, v.Len())
		for i, item := range v.Items() {
			if item.Kind() == expr.KindSeq || item.Kind() == expr.KindMap {
				return nil, fmt.Errorf("element %d is %s, not a scalar", i, item.Kind())
			}
			out = append(out, item.String())
		}
		return out, nil
	case expr.KindMap:
		return nil, fmt.Errorf("expected a list, got %s", v.Kind())
	default:
		return []string{v.String()}, nil
	}
}

func (t *templater) step(s *model.Step, vars map[string]string) error {
	var err error
	if s.DisplayName, err = t.text(s.DisplayName, vars); err != nil {
		return fmt.Errorf("displayName: %w", err)
	}
	if s.Condition, err = t.text(s.Condition, vars); err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	if err := t.strings(s.Env, vars, "env"); err != nil {
		return err
	}

	a := s.Action
	switch {
	case a.Shell != nil:
		if a.Shell.Script, err = t.text(a.Shell.Script, vars); err != nil {
			return fmt.Errorf("script: %w", err)
		}
	case a.Command != nil:
		for i, arg := range a.Command.Argv {
			if a.Command.Argv[i], err = t.text(arg, vars); err != nil {
				return fmt.Errorf("command argument %d: %w", i, err)
			}
		}
	case a.Task != nil:
		if a.Task.Ref, err = t.text(a.Task.Ref, vars); err != nil {
			return fmt.Errorf("task: %w", err)
		}
		if err := t.strings(a.Task.Inputs, vars, "input"); err != nil {
			return err
		}
	}
	return nil
}

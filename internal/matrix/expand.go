package matrix

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/stagegrid/internal/expr"
	"github.com/specialistvlad/stagegrid/internal/model"
)

// Combination is one expanded point of a matrix.
type Combination struct {
	// Name is the generated instance name, "<job>.<suffix>".
	Name string
	// Index is the position of the combination in the ordered product.
	Index int
	// Overlay maps dimension names (or leg variable names) to values.
	Overlay map[string]string
}

// dimension is a resolved axis with literal values.
type dimension struct {
	name   string
	values []string
}

// Expand computes the combinations of a job's matrix. Dimension and matrix
// expressions are evaluated against ectx. A job without a matrix yields a
// single combination named after the job with an empty overlay.
func Expand(job *model.Job, ectx *expr.Context) ([]Combination, error) {
	if !job.IsTemplate() {
		return []Combination{{Name: job.Name, Index: 0}}, nil
	}
	m := job.Strategy.Matrix

	declared := 0
	for _, set := range []bool{len(m.Dimensions) > 0, len(m.Legs) > 0, m.Expr != ""} {
		if set {
			declared++
		}
	}
	if declared != 1 {
		return nil, &Error{Job: job.Name, Err: fmt.Errorf("%w: exactly one of dimensions, legs or an expression must be given", ErrInvalidMatrix)}
	}

	switch {
	case len(m.Legs) > 0:
		return expandLegs(job.Name, m.Legs)
	case m.Expr != "":
		v, err := evaluate(m.Expr, ectx)
		if err != nil {
			return nil, &Error{Job: job.Name, Err: fmt.Errorf("%w: %v", ErrInvalidMatrix, err)}
		}
		return expandValue(job.Name, v)
	default:
		dims := make([]dimension, 0, len(m.Dimensions))
		for _, d := range m.Dimensions {
			values := d.Values
			if d.Expr != "" {
				v, err := evaluate(d.Expr, ectx)
				if err != nil {
					return nil, &Error{Job: job.Name, Dimension: d.Name, Err: fmt.Errorf("%w: %v", ErrInvalidMatrix, err)}
				}
				values, err = sequenceValues(v)
				if err != nil {
					return nil, &Error{Job: job.Name, Dimension: d.Name, Err: err}
				}
			}
			if len(values) == 0 {
				return nil, &Error{Job: job.Name, Dimension: d.Name, Err: ErrEmptyDimension}
			}
			dims = append(dims, dimension{name: d.Name, values: values})
		}
		return product(job.Name, dims), nil
	}
}

// evaluate accepts either a bare expression or one wrapped in $[ ].
func evaluate(src string, ectx *expr.Context) (expr.Value, error) {
	trimmed := strings.TrimSpace(src)
	if strings.HasPrefix(trimmed, "$[") && strings.HasSuffix(trimmed, "]") {
		trimmed = trimmed[2 : len(trimmed)-1]
	}
	return expr.EvaluateString(trimmed, ectx)
}

// expandValue handles a matrix expression result: either a mapping of
// dimension name to sequence, or a mapping of leg name to variable mapping.
// Keys are taken in sorted order because mappings carry no declared order.
func expandValue(job string, v expr.Value) ([]Combination, error) {
	if v.Kind() != expr.KindMap {
		return nil, &Error{Job: job, Err: fmt.Errorf("%w: expression must produce an object, got %s", ErrInvalidMatrix, v.Kind())}
	}
	keys := v.Keys()
	if len(keys) == 0 {
		return nil, &Error{Job: job, Err: ErrEmptyDimension}
	}

	first, _ := v.Field(keys[0])
	if first.Kind() == expr.KindMap {
		legs := make([]model.Leg, 0, len(keys))
		for _, k := range keys {
			item, _ := v.Field(k)
			if item.Kind() != expr.KindMap {
				return nil, &Error{Job: job, Dimension: k, Err: fmt.Errorf("%w: mixed legs and dimensions", ErrInvalidMatrix)}
			}
			vars := make(map[string]string, item.Len())
			for _, vk := range item.Keys() {
				vv, _ := item.Field(vk)
				vars[vk] = vv.String()
			}
			legs = append(legs, model.Leg{Name: k, Variables: vars})
		}
		return expandLegs(job, legs)
	}

	dims := make([]dimension, 0, len(keys))
	for _, k := range keys {
		item, _ := v.Field(k)
		values, err := sequenceValues(item)
		if err != nil {
			return nil, &Error{Job: job, Dimension: k, Err: err}
		}
		if len(values) == 0 {
			return nil, &Error{Job: job, Dimension: k, Err: ErrEmptyDimension}
		}
		dims = append(dims, dimension{name: k, values: values})
	}
	return product(job, dims), nil
}

func sequenceValues(v expr.Value) ([]string, error) {
	if v.Kind() != expr.KindSeq {
		return nil, fmt.Errorf("%w: expected an array, got %s", ErrInvalidMatrix, v.Kind())
	}
	values := make([]string, 0, v.Len())
	for i, item := range v.Items() {
		if item.Kind() == expr.KindMap || item.Kind() == expr.KindSeq {
			return nil, fmt.Errorf("%w: element %d is %s, not a scalar", ErrInvalidMatrix, i, item.Kind())
		}
		values = append(values, item.String())
	}
	return values, nil
}

func expandLegs(job string, legs []model.Leg) ([]Combination, error) {
	names := newNamer(job)
	combos := make([]Combination, 0, len(legs))
	for i, leg := range legs {
		if leg.Name == "" {
			return nil, &Error{Job: job, Err: fmt.Errorf("%w: leg %d has no name", ErrInvalidMatrix, i)}
		}
		overlay := make(map[string]string, len(leg.Variables))
		for k, v := range leg.Variables {
			overlay[k] = v
		}
		combos = append(combos, Combination{Name: names.next([]string{leg.Name}, i), Index: i, Overlay: overlay})
	}
	return combos, nil
}

// product walks the cartesian product like an odometer: the last dimension
// varies fastest.
func product(job string, dims []dimension) []Combination {
	total := 1
	for _, d := range dims {
		total *= len(d.values)
	}

	names := newNamer(job)
	combos := make([]Combination, 0, total)
	counters := make([]int, len(dims))
	for index := 0; index < total; index++ {
		overlay := make(map[string]string, len(dims))
		parts := make([]string, len(dims))
		for i, d := range dims {
			overlay[d.name] = d.values[counters[i]]
			parts[i] = d.values[counters[i]]
		}
		combos = append(combos, Combination{Name: names.next(parts, index), Index: index, Overlay: overlay})

		for i := len(dims) - 1; i >= 0; i-- {
			counters[i]++
			if counters[i] < len(dims[i].values) {
				break
			}
			counters[i] = 0
		}
	}
	return combos
}

package expr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type builtin struct {
	minArgs int
	// maxArgs is -1 for variadic functions.
	maxArgs int
	eager   func(ev *evaluator, c *Call, args []Value) (Value, error)
	// lazy functions receive unevaluated arguments.
	lazy func(ev *evaluator, c *Call) (Value, error)
}

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"eq": {minArgs: 2, maxArgs: 2, eager: func(_ *evaluator, _ *Call, a []Value) (Value, error) {
			return Bool(Equal(a[0], a[1])), nil
		}},
		"ne": {minArgs: 2, maxArgs: 2, eager: func(_ *evaluator, _ *Call, a []Value) (Value, error) {
			return Bool(!Equal(a[0], a[1])), nil
		}},
		"gt": compareBuiltin(func(c int) bool { return c > 0 }),
		"ge": compareBuiltin(func(c int) bool { return c >= 0 }),
		"lt": compareBuiltin(func(c int) bool { return c < 0 }),
		"le": compareBuiltin(func(c int) bool { return c <= 0 }),

		"and":   {minArgs: 2, maxArgs: -1, lazy: fnAnd},
		"or":    {minArgs: 2, maxArgs: -1, lazy: fnOr},
		"not":   {minArgs: 1, maxArgs: 1, eager: func(_ *evaluator, _ *Call, a []Value) (Value, error) { return Bool(!a[0].Truthy()), nil }},
		"xor":   {minArgs: 2, maxArgs: 2, eager: func(_ *evaluator, _ *Call, a []Value) (Value, error) { return Bool(a[0].Truthy() != a[1].Truthy()), nil }},
		"iif":   {minArgs: 3, maxArgs: 3, lazy: fnIif},
		"in":    {minArgs: 2, maxArgs: -1, eager: func(_ *evaluator, _ *Call, a []Value) (Value, error) { return Bool(in(a[0], a[1:])), nil }},
		"notin": {minArgs: 2, maxArgs: -1, eager: func(_ *evaluator, _ *Call, a []Value) (Value, error) { return Bool(!in(a[0], a[1:])), nil }},

		"contains":      {minArgs: 2, maxArgs: 2, eager: stringPredicate(strings.Contains)},
		"startswith":    {minArgs: 2, maxArgs: 2, eager: stringPredicate(strings.HasPrefix)},
		"endswith":      {minArgs: 2, maxArgs: 2, eager: stringPredicate(strings.HasSuffix)},
		"containsvalue": {minArgs: 2, maxArgs: 2, eager: fnContainsValue},
		"split":         {minArgs: 2, maxArgs: 2, eager: fnSplit},
		"join":          {minArgs: 2, maxArgs: 2, eager: fnJoin},
		"format":        {minArgs: 1, maxArgs: -1, eager: fnFormat},
		"lower":         {minArgs: 1, maxArgs: 1, eager: stringTransform(strings.ToLower)},
		"upper":         {minArgs: 1, maxArgs: 1, eager: stringTransform(strings.ToUpper)},
		"length":        {minArgs: 1, maxArgs: 1, eager: fnLength},
		"coalesce":      {minArgs: 1, maxArgs: -1, eager: fnCoalesce},
		"replace":       {minArgs: 3, maxArgs: 3, eager: fnReplace},
		"converttojson": {minArgs: 1, maxArgs: 1, eager: fnConvertToJSON},

		"succeeded":         {minArgs: 0, maxArgs: -1, eager: statusBuiltin(isSucceeded, false)},
		"failed":            {minArgs: 0, maxArgs: -1, eager: statusBuiltin(isFailed, true)},
		"succeededorfailed": {minArgs: 0, maxArgs: -1, eager: statusBuiltin(isSucceededOrFailed, false)},
		"always":            {minArgs: 0, maxArgs: 0, eager: func(*evaluator, *Call, []Value) (Value, error) { return Bool(true), nil }},
		"canceled":          {minArgs: 0, maxArgs: 0, eager: func(ev *evaluator, _ *Call, _ []Value) (Value, error) { return Bool(ev.ctx.Canceled), nil }},
	}
}

// Functions returns the names of all built-in functions, lowercased.
func Functions() []string {
	return sortedKeys(builtins)
}

func arityText(minArgs, maxArgs int) string {
	switch {
	case maxArgs < 0:
		return fmt.Sprintf("expects at least %d arguments", minArgs)
	case minArgs == maxArgs:
		return fmt.Sprintf("expects %d arguments", minArgs)
	default:
		return fmt.Sprintf("expects %d to %d arguments", minArgs, maxArgs)
	}
}

func compareBuiltin(pred func(int) bool) builtin {
	return builtin{minArgs: 2, maxArgs: 2, eager: func(_ *evaluator, c *Call, a []Value) (Value, error) {
		cmp, err := Compare(a[0], a[1], c.At)
		if err != nil {
			return Value{}, err
		}
		return Bool(pred(cmp)), nil
	}}
}

func fnAnd(ev *evaluator, c *Call) (Value, error) {
	for _, arg := range c.Args {
		v, err := ev.eval(arg)
		if err != nil {
			return Value{}, err
		}
		if !v.Truthy() {
			return Bool(false), nil
		}
	}
	return Bool(true), nil
}

func fnOr(ev *evaluator, c *Call) (Value, error) {
	for _, arg := range c.Args {
		v, err := ev.eval(arg)
		if err != nil {
			return Value{}, err
		}
		if v.Truthy() {
			return Bool(true), nil
		}
	}
	return Bool(false), nil
}

func fnIif(ev *evaluator, c *Call) (Value, error) {
	cond, err := ev.eval(c.Args[0])
	if err != nil {
		return Value{}, err
	}
	if cond.Truthy() {
		return ev.eval(c.Args[1])
	}
	return ev.eval(c.Args[2])
}

func in(needle Value, haystack []Value) bool {
	for _, h := range haystack {
		if Equal(needle, h) {
			return true
		}
	}
	return false
}

// scalarText converts a function argument to a string or reports
// InvalidArguments naming the function and argument position.
func scalarText(c *Call, i int, v Value) (string, error) {
	s, ok := toText(v)
	if !ok {
		return "", evalErrorf(InvalidArguments, c.At, "%s() argument %d must be a string, got %s", c.Name, i+1, v.Kind())
	}
	return s, nil
}

func stringPredicate(pred func(s, sub string) bool) func(*evaluator, *Call, []Value) (Value, error) {
	return func(_ *evaluator, c *Call, a []Value) (Value, error) {
		s, err := scalarText(c, 0, a[0])
		if err != nil {
			return Value{}, err
		}
		sub, err := scalarText(c, 1, a[1])
		if err != nil {
			return Value{}, err
		}
		return Bool(pred(strings.ToLower(s), strings.ToLower(sub))), nil
	}
}

func stringTransform(fn func(string) string) func(*evaluator, *Call, []Value) (Value, error) {
	return func(_ *evaluator, c *Call, a []Value) (Value, error) {
		s, err := scalarText(c, 0, a[0])
		if err != nil {
			return Value{}, err
		}
		return String(fn(s)), nil
	}
}

func fnContainsValue(_ *evaluator, c *Call, a []Value) (Value, error) {
	switch a[0].Kind() {
	case KindSeq:
		return Bool(in(a[1], a[0].Items())), nil
	case KindMap:
		for _, k := range a[0].Keys() {
			v, _ := a[0].Field(k)
			if Equal(v, a[1]) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	default:
		return Value{}, evalErrorf(InvalidArguments, c.At, "%s() argument 1 must be an array or object, got %s", c.Name, a[0].Kind())
	}
}

func fnSplit(_ *evaluator, c *Call, a []Value) (Value, error) {
	s, err := scalarText(c, 0, a[0])
	if err != nil {
		return Value{}, err
	}
	sep, err := scalarText(c, 1, a[1])
	if err != nil {
		return Value{}, err
	}
	if s == "" {
		return Seq(), nil
	}
	parts := strings.Split(s, sep)
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = String(p)
	}
	return Seq(items...), nil
}

func fnJoin(_ *evaluator, c *Call, a []Value) (Value, error) {
	sep, err := scalarText(c, 0, a[0])
	if err != nil {
		return Value{}, err
	}
	switch a[1].Kind() {
	case KindSeq:
		parts := make([]string, 0, a[1].Len())
		for i, item := range a[1].Items() {
			s, ok := toText(item)
			if !ok {
				return Value{}, evalErrorf(InvalidArguments, c.At, "%s() element %d is %s, not a scalar", c.Name, i, item.Kind())
			}
			parts = append(parts, s)
		}
		return String(strings.Join(parts, sep)), nil
	case KindMap:
		return Value{}, evalErrorf(InvalidArguments, c.At, "%s() argument 2 must be an array, got object", c.Name)
	default:
		return String(a[1].String()), nil
	}
}

// fnFormat replaces {0}, {1}, ... with the corresponding arguments. Literal
// braces are written as {{ and }}.
func fnFormat(_ *evaluator, c *Call, a []Value) (Value, error) {
	tmpl, err := scalarText(c, 0, a[0])
	if err != nil {
		return Value{}, err
	}
	args := a[1:]
	var sb strings.Builder
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch {
		case ch == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			sb.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			sb.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return Value{}, evalErrorf(InvalidArguments, c.At, "%s() has an unclosed '{' at %d", c.Name, i)
			}
			n, convErr := strconv.Atoi(strings.TrimSpace(tmpl[i+1 : i+end]))
			if convErr != nil || n < 0 || n >= len(args) {
				return Value{}, evalErrorf(InvalidArguments, c.At, "%s() placeholder %q has no matching argument", c.Name, tmpl[i:i+end+1])
			}
			sb.WriteString(args[n].String())
			i += end
		case ch == '}':
			return Value{}, evalErrorf(InvalidArguments, c.At, "%s() has an unmatched '}' at %d", c.Name, i)
		default:
			sb.WriteByte(ch)
		}
	}
	return String(sb.String()), nil
}

func fnLength(_ *evaluator, c *Call, a []Value) (Value, error) {
	switch a[0].Kind() {
	case KindString, KindSeq, KindMap:
		return Number(float64(a[0].Len())), nil
	case KindNull:
		return Number(0), nil
	default:
		return Value{}, evalErrorf(InvalidArguments, c.At, "%s() cannot measure %s", c.Name, a[0].Kind())
	}
}

func fnCoalesce(_ *evaluator, _ *Call, a []Value) (Value, error) {
	for _, v := range a {
		if v.IsNull() || (v.Kind() == KindString && v.Str() == "") {
			continue
		}
		return v, nil
	}
	return Null(), nil
}

func fnReplace(_ *evaluator, c *Call, a []Value) (Value, error) {
	texts := make([]string, 3)
	for i := range texts {
		s, err := scalarText(c, i, a[i])
		if err != nil {
			return Value{}, err
		}
		texts[i] = s
	}
	if texts[1] == "" {
		return String(texts[0]), nil
	}
	return String(strings.ReplaceAll(texts[0], texts[1], texts[2])), nil
}

func fnConvertToJSON(_ *evaluator, c *Call, a []Value) (Value, error) {
	data, err := json.MarshalIndent(a[0].ToGo(), "", "  ")
	if err != nil {
		return Value{}, evalErrorf(InvalidArguments, c.At, "%s(): %v", c.Name, err)
	}
	return String(string(data)), nil
}

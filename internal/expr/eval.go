package expr

import (
	"math"
	"strings"
)

// DefaultCondition is the condition applied to nodes that declare none.
const DefaultCondition = "succeeded()"

// Evaluate computes the value of e against ctx. A nil ctx behaves like an
// empty context. Evaluation only reads the context.
func Evaluate(e Expr, ctx *Context) (Value, error) {
	if ctx == nil {
		ctx = emptyContext
	}
	ev := &evaluator{ctx: ctx}
	return ev.eval(e)
}

// EvaluateString parses and evaluates src.
func EvaluateString(src string, ctx *Context) (Value, error) {
	e, err := Parse(src)
	if err != nil {
		return Value{}, err
	}
	return Evaluate(e, ctx)
}

// EvaluateCondition parses and evaluates a condition, returning its truthiness.
// An empty condition means DefaultCondition.
func EvaluateCondition(src string, ctx *Context) (bool, error) {
	if strings.TrimSpace(src) == "" {
		src = DefaultCondition
	}
	v, err := EvaluateString(src, ctx)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

type evaluator struct {
	ctx *Context
}

func (ev *evaluator) eval(e Expr) (Value, error) {
	switch n := e.(type) {
	case *Literal:
		return n.Value, nil
	case *Reference:
		return ev.resolve(n)
	case *Unary:
		return ev.unary(n)
	case *Binary:
		return ev.binary(n)
	case *Call:
		return ev.call(n)
	default:
		return Value{}, evalErrorf(TypeMismatch, e.Pos(), "unsupported expression node %T", e)
	}
}

func (ev *evaluator) resolve(ref *Reference) (Value, error) {
	cur, ok := ev.ctx.base(ref.Base)
	if !ok {
		return Value{}, evalErrorf(UndefinedReference, ref.At, "unknown name '%s'", ref.Base)
	}

	parts := ref.Parts
	if strings.EqualFold(ref.Base, "variables") {
		cur, parts, ok = ev.resolveDottedVariable(parts)
		if !ok {
			return Value{}, evalErrorf(UndefinedReference, ref.At, "'%s' is not defined", ref.String())
		}
	}

	path := ref.Base
	for _, part := range parts {
		if part.Index == nil {
			path += "." + part.Field
			next, found := cur.Field(part.Field)
			if !found {
				return Value{}, evalErrorf(UndefinedReference, ref.At, "'%s' is not defined", path)
			}
			cur = next
			continue
		}

		idx, err := ev.eval(part.Index)
		if err != nil {
			return Value{}, err
		}
		path += "[" + part.Index.String() + "]"
		next, found, err := index(cur, idx, part.Index.Pos())
		if err != nil {
			return Value{}, err
		}
		if !found {
			return Value{}, evalErrorf(UndefinedReference, ref.At, "'%s' is not defined", path)
		}
		cur = next
	}
	return cur, nil
}

// resolveDottedVariable lets variables.build.configuration find the variable
// named "build.configuration". The longest matching dotted prefix wins. When
// the first part is an index the usual lookup applies.
func (ev *evaluator) resolveDottedVariable(parts []ReferencePart) (Value, []ReferencePart, bool) {
	vars := StringMap(ev.ctx.Variables)
	if len(parts) == 0 || parts[0].Index != nil {
		return vars, parts, true
	}
	fields := 0
	for fields < len(parts) && parts[fields].Index == nil {
		fields++
	}
	for n := fields; n >= 1; n-- {
		names := make([]string, n)
		for i := 0; i < n; i++ {
			names[i] = parts[i].Field
		}
		if v, ok := ev.ctx.Variable(strings.Join(names, ".")); ok {
			return String(v), parts[n:], true
		}
	}
	return Value{}, nil, false
}

func index(cur, idx Value, pos int) (Value, bool, error) {
	switch cur.Kind() {
	case KindSeq:
		n, ok := toNumber(idx)
		if !ok || idx.Kind() == KindNull || n != math.Trunc(n) {
			return Value{}, false, evalErrorf(TypeMismatch, pos, "array index must be an integer, got %s", idx.Kind())
		}
		v, found := cur.Index(int(n))
		return v, found, nil
	case KindMap:
		key, ok := toText(idx)
		if !ok {
			return Value{}, false, evalErrorf(TypeMismatch, pos, "object key must be a scalar, got %s", idx.Kind())
		}
		v, found := cur.Field(key)
		return v, found, nil
	default:
		return Value{}, false, nil
	}
}

func (ev *evaluator) unary(n *Unary) (Value, error) {
	v, err := ev.eval(n.Operand)
	if err != nil {
		return Value{}, err
	}
	switch n.Op {
	case TokenNot:
		return Bool(!v.Truthy()), nil
	case TokenMinus:
		f, ok := toNumber(v)
		if !ok {
			return Value{}, evalErrorf(TypeMismatch, n.At, "cannot negate %s", v.Kind())
		}
		return Number(-f), nil
	default:
		return Value{}, evalErrorf(TypeMismatch, n.At, "unknown unary operator %s", n.Op)
	}
}

func (ev *evaluator) binary(n *Binary) (Value, error) {
	left, err := ev.eval(n.Left)
	if err != nil {
		return Value{}, err
	}

	// Logical operators short-circuit.
	switch n.Op {
	case TokenAnd:
		if !left.Truthy() {
			return Bool(false), nil
		}
		right, err := ev.eval(n.Right)
		if err != nil {
			return Value{}, err
		}
		return Bool(right.Truthy()), nil
	case TokenOr:
		if left.Truthy() {
			return Bool(true), nil
		}
		right, err := ev.eval(n.Right)
		if err != nil {
			return Value{}, err
		}
		return Bool(right.Truthy()), nil
	}

	right, err := ev.eval(n.Right)
	if err != nil {
		return Value{}, err
	}

	switch n.Op {
	case TokenEq:
		return Bool(Equal(left, right)), nil
	case TokenNe:
		return Bool(!Equal(left, right)), nil
	case TokenLt, TokenLe, TokenGt, TokenGe:
		c, err := Compare(left, right, n.At)
		if err != nil {
			return Value{}, err
		}
		switch n.Op {
		case TokenLt:
			return Bool(c < 0), nil
		case TokenLe:
			return Bool(c <= 0), nil
		case TokenGt:
			return Bool(c > 0), nil
		default:
			return Bool(c >= 0), nil
		}
	case TokenPlus:
		return add(left, right, n.At)
	case TokenMinus:
		l, lok := toNumber(left)
		r, rok := toNumber(right)
		if !lok || !rok {
			return Value{}, evalErrorf(TypeMismatch, n.At, "cannot subtract %s from %s", right.Kind(), left.Kind())
		}
		return Number(l - r), nil
	default:
		return Value{}, evalErrorf(TypeMismatch, n.At, "unknown operator %s", n.Op)
	}
}

// add concatenates when either side is a string and adds numerically otherwise.
func add(left, right Value, pos int) (Value, error) {
	if left.Kind() == KindString || right.Kind() == KindString {
		l, lok := toText(left)
		r, rok := toText(right)
		if !lok || !rok {
			return Value{}, evalErrorf(TypeMismatch, pos, "cannot concatenate %s and %s", left.Kind(), right.Kind())
		}
		return String(l + r), nil
	}
	l, lok := toNumber(left)
	r, rok := toNumber(right)
	if !lok || !rok {
		return Value{}, evalErrorf(TypeMismatch, pos, "cannot add %s and %s", left.Kind(), right.Kind())
	}
	return Number(l + r), nil
}

func (ev *evaluator) call(c *Call) (Value, error) {
	fn, ok := builtins[strings.ToLower(c.Name)]
	if !ok {
		return Value{}, evalErrorf(UnknownFunction, c.At, "'%s'", c.Name)
	}
	if len(c.Args) < fn.minArgs || (fn.maxArgs >= 0 && len(c.Args) > fn.maxArgs) {
		return Value{}, evalErrorf(InvalidArguments, c.At, "%s() %s, got %d", c.Name, arityText(fn.minArgs, fn.maxArgs), len(c.Args))
	}
	if fn.lazy != nil {
		return fn.lazy(ev, c)
	}
	args := make([]Value, len(c.Args))
	for i, a := range c.Args {
		v, err := ev.eval(a)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}
	return fn.eager(ev, c, args)
}

package expr

import (
	"strings"
)

// Expr is a node of a parsed expression. Trees are immutable once parsed.
type Expr interface {
	// Pos is the byte offset of the node's first token.
	Pos() int
	// String renders the node back to canonical expression source.
	String() string
	exprNode()
}

// Literal is a constant value.
type Literal struct {
	Value Value
	At    int
}

// Reference is a base identifier followed by field and index accessors, e.g.
// dependencies[stage.name].outputs['job.var'].
type Reference struct {
	Base  string
	Parts []ReferencePart
	At    int
}

// ReferencePart is one accessor of a Reference. Exactly one of Field and
// Index is set.
type ReferencePart struct {
	Field string
	Index Expr
}

// Unary is a prefix operator applied to one operand.
type Unary struct {
	Op      TokenKind
	Operand Expr
	At      int
}

// Binary is an infix operator applied to two operands.
type Binary struct {
	Op          TokenKind
	Left, Right Expr
	At          int
}

// Call is a function invocation.
type Call struct {
	Name string
	Args []Expr
	At   int
}

func (e *Literal) Pos() int   { return e.At }
func (e *Reference) Pos() int { return e.At }
func (e *Unary) Pos() int     { return e.At }
func (e *Binary) Pos() int    { return e.At }
func (e *Call) Pos() int      { return e.At }

func (*Literal) exprNode()   {}
func (*Reference) exprNode() {}
func (*Unary) exprNode()     {}
func (*Binary) exprNode()    {}
func (*Call) exprNode()      {}

func (e *Literal) String() string {
	switch e.Value.Kind() {
	case KindString:
		return "'" + strings.ReplaceAll(e.Value.Str(), "'", "''") + "'"
	case KindNull:
		return "null"
	case KindBool:
		if e.Value.Truthy() {
			return "true"
		}
		return "false"
	default:
		return e.Value.String()
	}
}

func (e *Reference) String() string {
	var sb strings.Builder
	sb.WriteString(e.Base)
	for _, p := range e.Parts {
		if p.Index != nil {
			sb.WriteByte('[')
			sb.WriteString(p.Index.String())
			sb.WriteByte(']')
			continue
		}
		sb.WriteByte('.')
		sb.WriteString(p.Field)
	}
	return sb.String()
}

// Path returns the reference as dotted field names, stopping at the first
// index whose value is not a string literal. It is used for static analysis.
func (e *Reference) Path() []string {
	path := []string{e.Base}
	for _, p := range e.Parts {
		if p.Index == nil {
			path = append(path, p.Field)
			continue
		}
		lit, ok := p.Index.(*Literal)
		if !ok || lit.Value.Kind() != KindString {
			break
		}
		path = append(path, lit.Value.Str())
	}
	return path
}

func (e *Unary) String() string {
	return e.Op.String() + e.Operand.String()
}

func (e *Binary) String() string {
	return "(" + e.Left.String() + " " + e.Op.String() + " " + e.Right.String() + ")"
}

func (e *Call) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return e.Name + "(" + strings.Join(args, ", ") + ")"
}

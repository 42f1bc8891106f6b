package expr

import "fmt"

// LexErrorKind classifies a LexError.
type LexErrorKind int

const (
	UnterminatedString LexErrorKind = iota
	UnknownCharacter
	UnmatchedBracket
	UnterminatedExpression
)

func (k LexErrorKind) String() string {
	switch k {
	case UnterminatedString:
		return "unterminated string literal"
	case UnknownCharacter:
		return "unknown character"
	case UnmatchedBracket:
		return "unmatched bracket"
	case UnterminatedExpression:
		return "unterminated expression"
	default:
		return "lex error"
	}
}

// LexError reports malformed expression text. Offset is a byte offset into
// the text handed to the lexer or extractor.
type LexError struct {
	Kind   LexErrorKind
	Offset int
	Detail string
}

func (e *LexError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s at offset %d: %s", e.Kind, e.Offset, e.Detail)
	}
	return fmt.Sprintf("%s at offset %d", e.Kind, e.Offset)
}

// ParseErrorKind classifies a ParseError.
type ParseErrorKind int

const (
	UnexpectedToken ParseErrorKind = iota
	UnexpectedEnd
	InvalidReference
)

func (k ParseErrorKind) String() string {
	switch k {
	case UnexpectedToken:
		return "unexpected token"
	case UnexpectedEnd:
		return "unexpected end of input"
	case InvalidReference:
		return "invalid reference"
	default:
		return "parse error"
	}
}

// ParseError reports a malformed token sequence.
type ParseError struct {
	Kind  ParseErrorKind
	Pos   int
	Token string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s %q at offset %d", e.Kind, e.Token, e.Pos)
	}
	return fmt.Sprintf("%s at offset %d", e.Kind, e.Pos)
}

// EvalErrorKind classifies an EvalError.
type EvalErrorKind int

const (
	UndefinedReference EvalErrorKind = iota
	TypeMismatch
	InvalidArguments
	UnknownFunction
)

func (k EvalErrorKind) String() string {
	switch k {
	case UndefinedReference:
		return "undefined reference"
	case TypeMismatch:
		return "type mismatch"
	case InvalidArguments:
		return "invalid arguments"
	case UnknownFunction:
		return "unknown function"
	default:
		return "evaluation error"
	}
}

// EvalError reports a failure while evaluating a well-formed expression.
type EvalError struct {
	Kind   EvalErrorKind
	Pos    int
	Detail string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func evalErrorf(kind EvalErrorKind, pos int, format string, args ...any) *EvalError {
	return &EvalError{Kind: kind, Pos: pos, Detail: fmt.Sprintf(format, args...)}
}

package expr

import "fmt"

// TokenKind identifies the class of a lexed token.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenIdent
	TokenNumber
	TokenString
	TokenBool
	TokenNull

	TokenDot
	TokenComma
	TokenLParen
	TokenRParen
	TokenLBracket
	TokenRBracket

	TokenEq
	TokenNe
	TokenLt
	TokenLe
	TokenGt
	TokenGe
	TokenAnd
	TokenOr
	TokenNot
	TokenPlus
	TokenMinus
)

var tokenNames = map[TokenKind]string{
	TokenEOF:      "EOF",
	TokenIdent:    "identifier",
	TokenNumber:   "number",
	TokenString:   "string",
	TokenBool:     "boolean",
	TokenNull:     "null",
	TokenDot:      ".",
	TokenComma:    ",",
	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenLBracket: "[",
	TokenRBracket: "]",
	TokenEq:       "==",
	TokenNe:       "!=",
	TokenLt:       "<",
	TokenLe:       "<=",
	TokenGt:       ">",
	TokenGe:       ">=",
	TokenAnd:      "&&",
	TokenOr:       "||",
	TokenNot:      "!",
	TokenPlus:     "+",
	TokenMinus:    "-",
}

func (k TokenKind) String() string {
	if n, ok := tokenNames[k]; ok {
		return n
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is a single lexeme. Text holds the literal source for identifiers and
// numbers and the unescaped contents for strings. Pos is the byte offset of
// the token's first character.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

func (t Token) String() string {
	switch t.Kind {
	case TokenIdent, TokenNumber, TokenBool, TokenNull:
		return t.Text
	case TokenString:
		return "'" + t.Text + "'"
	default:
		return t.Kind.String()
	}
}

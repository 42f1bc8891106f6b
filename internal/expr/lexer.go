package expr

import (
	"strings"
)

// Lex tokenizes the contents of a single expression span. The returned slice
// always ends with a TokenEOF. Unterminated strings, unknown characters and
// unbalanced brackets are reported here rather than by the parser.
func Lex(src string) ([]Token, error) {
	l := &lexer{src: src}
	return l.run()
}

type lexer struct {
	src    string
	pos    int
	tokens []Token
	// brackets holds the offsets and kinds of currently open ( and [.
	brackets []Token
}

func (l *lexer) run() ([]Token, error) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case isIdentStart(c):
			l.lexIdent()
		case isDigit(c):
			l.lexNumber()
		case c == '\'':
			if err := l.lexString(); err != nil {
				return nil, err
			}
		default:
			if err := l.lexPunct(); err != nil {
				return nil, err
			}
		}
	}
	if len(l.brackets) > 0 {
		open := l.brackets[len(l.brackets)-1]
		return nil, &LexError{Kind: UnmatchedBracket, Offset: open.Pos, Detail: "'" + open.Kind.String() + "' is never closed"}
	}
	l.tokens = append(l.tokens, Token{Kind: TokenEOF, Pos: len(l.src)})
	return l.tokens, nil
}

func (l *lexer) emit(kind TokenKind, text string, pos int) {
	l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Pos: pos})
}

// lexIdent reads an identifier. A '-' continues an identifier only when it is
// followed by a letter or underscore, so `build-linux` is one name while
// `a - 1` and `a-1` are subtractions.
func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isIdentPart(c) {
			l.pos++
			continue
		}
		if c == '-' && l.pos+1 < len(l.src) && isIdentStart(l.src[l.pos+1]) {
			l.pos++
			continue
		}
		break
	}
	word := l.src[start:l.pos]
	switch strings.ToLower(word) {
	case "true", "false":
		l.emit(TokenBool, word, start)
	case "null":
		l.emit(TokenNull, word, start)
	default:
		l.emit(TokenIdent, word, start)
	}
}

func (l *lexer) lexNumber() {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos+1 < len(l.src) && l.src[l.pos] == '.' && isDigit(l.src[l.pos+1]) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	l.emit(TokenNumber, l.src[start:l.pos], start)
}

// lexString reads a single-quoted string; a doubled quote is an escaped quote.
func (l *lexer) lexString() error {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\'' {
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '\'' {
				sb.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			l.emit(TokenString, sb.String(), start)
			return nil
		}
		sb.WriteByte(c)
		l.pos++
	}
	return &LexError{Kind: UnterminatedString, Offset: start}
}

func (l *lexer) lexPunct() error {
	start := l.pos
	c := l.src[l.pos]
	next := byte(0)
	if l.pos+1 < len(l.src) {
		next = l.src[l.pos+1]
	}

	two := func(kind TokenKind) {
		l.emit(kind, l.src[start:start+2], start)
		l.pos += 2
	}
	one := func(kind TokenKind) {
		l.emit(kind, l.src[start:start+1], start)
		l.pos++
	}

	switch c {
	case '.':
		one(TokenDot)
	case ',':
		one(TokenComma)
	case '+':
		one(TokenPlus)
	case '-':
		one(TokenMinus)
	case '(':
		one(TokenLParen)
		l.brackets = append(l.brackets, l.tokens[len(l.tokens)-1])
	case '[':
		one(TokenLBracket)
		l.brackets = append(l.brackets, l.tokens[len(l.tokens)-1])
	case ')', ']':
		want := TokenLParen
		kind := TokenRParen
		if c == ']' {
			want = TokenLBracket
			kind = TokenRBracket
		}
		if len(l.brackets) == 0 || l.brackets[len(l.brackets)-1].Kind != want {
			return &LexError{Kind: UnmatchedBracket, Offset: start, Detail: "unexpected '" + string(c) + "'"}
		}
		l.brackets = l.brackets[:len(l.brackets)-1]
		one(kind)
	case '=':
		if next == '=' {
			two(TokenEq)
			return nil
		}
		return &LexError{Kind: UnknownCharacter, Offset: start, Detail: "'=' (did you mean '=='?)"}
	case '!':
		if next == '=' {
			two(TokenNe)
			return nil
		}
		one(TokenNot)
	case '<':
		if next == '=' {
			two(TokenLe)
			return nil
		}
		one(TokenLt)
	case '>':
		if next == '=' {
			two(TokenGe)
			return nil
		}
		one(TokenGt)
	case '&':
		if next == '&' {
			two(TokenAnd)
			return nil
		}
		return &LexError{Kind: UnknownCharacter, Offset: start, Detail: "'&'"}
	case '|':
		if next == '|' {
			two(TokenOr)
			return nil
		}
		return &LexError{Kind: UnknownCharacter, Offset: start, Detail: "'|'"}
	default:
		return &LexError{Kind: UnknownCharacter, Offset: start, Detail: "'" + string(c) + "'"}
	}
	return nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

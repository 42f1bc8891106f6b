package expr

import (
	"strconv"
	"strings"
)

// Parse lexes and parses a single expression.
func Parse(src string) (Expr, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return ParseTokens(tokens)
}

// ParseTokens parses a token sequence produced by Lex. The whole sequence must
// form exactly one expression.
//
// Precedence, lowest first: || (or), && (and), == !=, < <= > >=, + -,
// unary ! - not, then primaries. The words `and`, `or` and `not` act as
// operators unless immediately followed by '(' in a prefix position, where
// they are the function calls of the same name.
func ParseTokens(tokens []Token) (Expr, error) {
	if len(tokens) == 0 || tokens[len(tokens)-1].Kind != TokenEOF {
		tokens = append(tokens, Token{Kind: TokenEOF})
	}
	p := &parser{tokens: tokens}
	if p.peek().Kind == TokenEOF {
		return nil, &ParseError{Kind: UnexpectedEnd, Pos: p.peek().Pos}
	}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Kind != TokenEOF {
		return nil, &ParseError{Kind: UnexpectedToken, Pos: tok.Pos, Token: tok.String()}
	}
	return e, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Kind != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) unexpected(tok Token) error {
	if tok.Kind == TokenEOF {
		return &ParseError{Kind: UnexpectedEnd, Pos: tok.Pos}
	}
	return &ParseError{Kind: UnexpectedToken, Pos: tok.Pos, Token: tok.String()}
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	tok := p.peek()
	if tok.Kind != kind {
		return tok, p.unexpected(tok)
	}
	return p.next(), nil
}

// isWord reports whether tok is the identifier w, ignoring case.
func isWord(tok Token, w string) bool {
	return tok.Kind == TokenIdent && strings.EqualFold(tok.Text, w)
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Kind != TokenOr && !isWord(tok, "or") {
			return left, nil
		}
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: TokenOr, Left: left, Right: right, At: tok.Pos}
	}
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Kind != TokenAnd && !isWord(tok, "and") {
			return left, nil
		}
		p.next()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: TokenAnd, Left: left, Right: right, At: tok.Pos}
	}
}

func (p *parser) parseBinary(next func() (Expr, error), ops ...TokenKind) (Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		matched := false
		for _, op := range ops {
			if tok.Kind == op {
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
		p.next()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: tok.Kind, Left: left, Right: right, At: tok.Pos}
	}
}

func (p *parser) parseEquality() (Expr, error) {
	return p.parseBinary(p.parseRelational, TokenEq, TokenNe)
}

func (p *parser) parseRelational() (Expr, error) {
	return p.parseBinary(p.parseAdditive, TokenLt, TokenLe, TokenGt, TokenGe)
}

func (p *parser) parseAdditive() (Expr, error) {
	return p.parseBinary(p.parseUnary, TokenPlus, TokenMinus)
}

func (p *parser) parseUnary() (Expr, error) {
	tok := p.peek()
	switch {
	case tok.Kind == TokenNot || tok.Kind == TokenMinus:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: tok.Kind, Operand: operand, At: tok.Pos}, nil
	case isWord(tok, "not") && p.peekAt(1).Kind != TokenLParen:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: TokenNot, Operand: operand, At: tok.Pos}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokenNumber:
		p.next()
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, &ParseError{Kind: UnexpectedToken, Pos: tok.Pos, Token: tok.Text}
		}
		return &Literal{Value: Number(f), At: tok.Pos}, nil
	case TokenString:
		p.next()
		return &Literal{Value: String(tok.Text), At: tok.Pos}, nil
	case TokenBool:
		p.next()
		return &Literal{Value: Bool(strings.EqualFold(tok.Text, "true")), At: tok.Pos}, nil
	case TokenNull:
		p.next()
		return &Literal{Value: Null(), At: tok.Pos}, nil
	case TokenLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case TokenIdent:
		if p.peekAt(1).Kind == TokenLParen {
			return p.parseCall()
		}
		return p.parseReference()
	default:
		return nil, p.unexpected(tok)
	}
}

func (p *parser) parseCall() (Expr, error) {
	name := p.next()
	p.next() // (
	call := &Call{Name: name.Text, At: name.Pos}
	if p.peek().Kind == TokenRParen {
		p.next()
		return call, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		tok := p.next()
		switch tok.Kind {
		case TokenComma:
			continue
		case TokenRParen:
			return call, nil
		default:
			return nil, p.unexpected(tok)
		}
	}
}

func (p *parser) parseReference() (Expr, error) {
	base := p.next()
	ref := &Reference{Base: base.Text, At: base.Pos}
	for {
		switch p.peek().Kind {
		case TokenDot:
			dot := p.next()
			field := p.peek()
			switch field.Kind {
			case TokenIdent, TokenBool, TokenNull:
				p.next()
				ref.Parts = append(ref.Parts, ReferencePart{Field: field.Text})
			default:
				return nil, &ParseError{Kind: InvalidReference, Pos: dot.Pos, Token: ref.String() + "." + field.String()}
			}
		case TokenLBracket:
			open := p.next()
			if p.peek().Kind == TokenRBracket {
				return nil, &ParseError{Kind: InvalidReference, Pos: open.Pos, Token: ref.String() + "[]"}
			}
			index, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRBracket); err != nil {
				return nil, err
			}
			ref.Parts = append(ref.Parts, ReferencePart{Index: index})
		default:
			return ref, nil
		}
	}
}

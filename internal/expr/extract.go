package expr

import "strings"

// Syntax identifies the delimiter form of an embedded expression.
type Syntax int

const (
	// SyntaxTemplate is ${{ expr }}.
	SyntaxTemplate Syntax = 1 << iota
	// SyntaxRuntime is $[ expr ].
	SyntaxRuntime
	// SyntaxMacro is $(name).
	SyntaxMacro
)

func (s Syntax) String() string {
	var parts []string
	if s&SyntaxTemplate != 0 {
		parts = append(parts, "template")
	}
	if s&SyntaxRuntime != 0 {
		parts = append(parts, "runtime")
	}
	if s&SyntaxMacro != 0 {
		parts = append(parts, "macro")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Span locates one embedded expression within a larger text.
type Span struct {
	Syntax Syntax
	// Start and End delimit the whole span including delimiters, End exclusive.
	Start, End int
	// Inner is the text between the delimiters and InnerStart its offset.
	Inner      string
	InnerStart int
}

// ExtractExpressions finds every embedded expression in text, in order of
// appearance. `$(` not followed by a valid variable name and `)` is left
// alone, so shell command substitution such as $(date) is not treated as a
// macro unless it looks exactly like one.
func ExtractExpressions(text string) ([]Span, error) {
	var spans []Span
	for i := 0; i < len(text); i++ {
		if text[i] != '$' || i+1 >= len(text) {
			continue
		}
		switch {
		case strings.HasPrefix(text[i:], "${{"):
			end, err := scanTemplate(text, i+3)
			if err != nil {
				return nil, err
			}
			spans = append(spans, Span{
				Syntax: SyntaxTemplate, Start: i, End: end + 2,
				Inner: text[i+3 : end], InnerStart: i + 3,
			})
			i = end + 1
		case text[i+1] == '[':
			end, err := scanRuntime(text, i+2)
			if err != nil {
				return nil, err
			}
			spans = append(spans, Span{
				Syntax: SyntaxRuntime, Start: i, End: end + 1,
				Inner: text[i+2 : end], InnerStart: i + 2,
			})
			i = end
		case text[i+1] == '(':
			if end, ok := scanMacro(text, i+2); ok {
				spans = append(spans, Span{
					Syntax: SyntaxMacro, Start: i, End: end + 1,
					Inner: text[i+2 : end], InnerStart: i + 2,
				})
				i = end
			}
		}
	}
	return spans, nil
}

// Classify reports which delimiter forms occur in text.
func Classify(text string) (Syntax, error) {
	spans, err := ExtractExpressions(text)
	if err != nil {
		return 0, err
	}
	var s Syntax
	for _, sp := range spans {
		s |= sp.Syntax
	}
	return s, nil
}

// scanTemplate returns the offset of the closing "}}" that ends a template
// span whose body starts at from. Quoted strings are skipped.
func scanTemplate(text string, from int) (int, error) {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case '\'':
			end, ok := skipQuoted(text, j)
			if !ok {
				return 0, &LexError{Kind: UnterminatedString, Offset: j}
			}
			j = end
		case '}':
			if j+1 < len(text) && text[j+1] == '}' {
				return j, nil
			}
		}
	}
	return 0, &LexError{Kind: UnterminatedExpression, Offset: from - 3, Detail: "missing '}}'"}
}

// scanRuntime returns the offset of the ']' that balances the '[' opening a
// runtime span whose body starts at from.
func scanRuntime(text string, from int) (int, error) {
	depth := 0
	for j := from; j < len(text); j++ {
		switch text[j] {
		case '\'':
			end, ok := skipQuoted(text, j)
			if !ok {
				return 0, &LexError{Kind: UnterminatedString, Offset: j}
			}
			j = end
		case '[':
			depth++
		case ']':
			if depth == 0 {
				return j, nil
			}
			depth--
		}
	}
	return 0, &LexError{Kind: UnterminatedExpression, Offset: from - 2, Detail: "missing ']'"}
}

// scanMacro accepts `name)` where name is a dotted variable name.
func scanMacro(text string, from int) (int, bool) {
	if from >= len(text) || !isIdentStart(text[from]) {
		return 0, false
	}
	for j := from + 1; j < len(text); j++ {
		c := text[j]
		switch {
		case isIdentPart(c) || c == '.' || c == '-':
		case c == ')':
			return j, true
		default:
			return 0, false
		}
	}
	return 0, false
}

// skipQuoted returns the offset of the quote that closes the string opened at
// start, honouring doubled-quote escapes.
func skipQuoted(text string, start int) (int, bool) {
	for j := start + 1; j < len(text); j++ {
		if text[j] != '\'' {
			continue
		}
		if j+1 < len(text) && text[j+1] == '\'' {
			j++
			continue
		}
		return j, true
	}
	return 0, false
}

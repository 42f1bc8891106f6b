package expr

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects which delimiter forms Interpolate resolves.
type Mode int

const (
	// ModeTemplate resolves ${{ }} and leaves runtime forms untouched.
	ModeTemplate Mode = iota
	// ModeRuntime resolves $[ ] and $(name). Any ${{ }} still present is an
	// error, since template expansion must already have happened.
	ModeRuntime
)

// ErrUnexpandedTemplate is returned when a template expression reaches
// runtime interpolation.
var ErrUnexpandedTemplate = errors.New("template expression was not expanded before run")

// Interpolate substitutes embedded expressions in text according to mode. A
// $(name) macro whose variable is unknown is left verbatim.
func Interpolate(text string, mode Mode, ctx *Context) (string, error) {
	if !strings.Contains(text, "$") {
		return text, nil
	}
	spans, err := ExtractExpressions(text)
	if err != nil {
		return "", err
	}
	if len(spans) == 0 {
		return text, nil
	}

	var sb strings.Builder
	last := 0
	for _, sp := range spans {
		sb.WriteString(text[last:sp.Start])
		last = sp.End
		replacement, keep, err := interpolateSpan(text, sp, mode, ctx)
		if err != nil {
			return "", err
		}
		if keep {
			sb.WriteString(text[sp.Start:sp.End])
			continue
		}
		sb.WriteString(replacement)
	}
	sb.WriteString(text[last:])
	return sb.String(), nil
}

func interpolateSpan(text string, sp Span, mode Mode, ctx *Context) (string, bool, error) {
	switch sp.Syntax {
	case SyntaxTemplate:
		if mode == ModeRuntime {
			return "", false, fmt.Errorf("%w: %q at offset %d", ErrUnexpandedTemplate, text[sp.Start:sp.End], sp.Start)
		}
	case SyntaxRuntime, SyntaxMacro:
		if mode == ModeTemplate {
			return "", true, nil
		}
	}

	if sp.Syntax == SyntaxMacro {
		v, ok := ctx.Variable(sp.Inner)
		if !ok {
			return "", true, nil
		}
		return v, false, nil
	}

	v, err := EvaluateString(sp.Inner, ctx)
	if err != nil {
		return "", false, fmt.Errorf("expression %q at offset %d: %w", strings.TrimSpace(sp.Inner), sp.Start, err)
	}
	return v.String(), false, nil
}

// TemplateValue evaluates text when it consists of exactly one ${{ }} span
// (surrounding whitespace allowed) and returns the typed result. ok is false
// when text is anything else.
func TemplateValue(text string, ctx *Context) (v Value, ok bool, err error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "${{") || !strings.HasSuffix(trimmed, "}}") {
		return Value{}, false, nil
	}
	spans, err := ExtractExpressions(trimmed)
	if err != nil {
		return Value{}, false, err
	}
	if len(spans) != 1 || spans[0].Start != 0 || spans[0].End != len(trimmed) || spans[0].Syntax != SyntaxTemplate {
		return Value{}, false, nil
	}
	v, err = EvaluateString(spans[0].Inner, ctx)
	if err != nil {
		return Value{}, true, fmt.Errorf("expression %q: %w", strings.TrimSpace(spans[0].Inner), err)
	}
	return v, true, nil
}

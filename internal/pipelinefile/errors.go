package pipelinefile

import (
	"errors"
	"fmt"
)

// ErrEmptyDocument is returned for a file without any content.
var ErrEmptyDocument = errors.New("empty pipeline document")

// ParseError locates a decoding failure in the source file.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	path := e.Path
	if path == "" {
		path = "<input>"
	}
	if e.Line == 0 {
		return fmt.Sprintf("%s: %v", path, e.Err)
	}
	return fmt.Sprintf("%s:%d:%d: %v", path, e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

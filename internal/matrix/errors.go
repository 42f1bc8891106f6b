package matrix

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDimension is returned when a dimension has no values.
	ErrEmptyDimension = errors.New("matrix dimension is empty")
	// ErrInvalidMatrix is returned when a matrix declaration or expression
	// does not have a usable shape.
	ErrInvalidMatrix = errors.New("invalid matrix")
)

// Error describes an expansion failure of one job template.
type Error struct {
	Job       string
	Dimension string
	Err       error
}

func (e *Error) Error() string {
	if e.Dimension != "" {
		return fmt.Sprintf("job '%s': dimension '%s': %v", e.Job, e.Dimension, e.Err)
	}
	return fmt.Sprintf("job '%s': %v", e.Job, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

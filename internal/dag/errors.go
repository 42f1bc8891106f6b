package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNodeNotFound is returned for operations on an unknown node ID.
	ErrNodeNotFound = errors.New("node not found")
	// ErrDuplicateNode is returned when a node ID is added twice.
	ErrDuplicateNode = errors.New("duplicate node")
	// ErrInvalidTransition is returned when a status change would move a node
	// backwards or re-mark a terminal node.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CycleError reports a dependency cycle. Path lists the nodes along the
// cycle with the first node repeated at the end, e.g. [a b c a].
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

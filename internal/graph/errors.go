package graph

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a GraphError.
type ErrorKind int

const (
	UnknownDependency ErrorKind = iota + 1
	CycleDetected
	EmptyMatrix
	DuplicateName
	InvalidMatrix
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownDependency:
		return "unknown dependency"
	case CycleDetected:
		return "cycle detected"
	case EmptyMatrix:
		return "empty matrix"
	case DuplicateName:
		return "duplicate name"
	case InvalidMatrix:
		return "invalid matrix"
	default:
		return fmt.Sprintf("graph error(%d)", int(k))
	}
}

// GraphError is a structural problem found while building the graph. No node
// runs when Build returns one.
type GraphError struct {
	Kind ErrorKind
	// Node is the stage ("build") or job ("build.compile") the error is about.
	Node string
	// Names holds the offending dependency or duplicate names.
	Names []string
	// Cycle lists the node sequence of a detected cycle, first node repeated last.
	Cycle []string
	Err   error
}

func (e *GraphError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Node != "" {
		fmt.Fprintf(&sb, " in '%s'", e.Node)
	}
	switch {
	case len(e.Cycle) > 0:
		fmt.Fprintf(&sb, ": %s", strings.Join(e.Cycle, " -> "))
	case len(e.Names) > 0:
		fmt.Fprintf(&sb, ": %s", strings.Join(e.Names, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *GraphError) Unwrap() error { return e.Err }

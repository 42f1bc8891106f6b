// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Status is shared by graph nodes, steps and the aggregate results. A status
// only ever moves forward: Pending -> Running -> one of the terminal values.
package model

import (
	"fmt"
	"strings"
)

// Status represents the execution status of a stage, job or step.
type Status int

const (
	// StatusPending indicates the node has not been started yet.
	StatusPending Status = iota
	// StatusRunning indicates the node is currently executing.
	StatusRunning
	// StatusSuccess indicates the node finished successfully.
	StatusSuccess
	// StatusFailed indicates the node finished with a failure.
	StatusFailed
	// StatusSkipped indicates the node was not run, either because its
	// condition evaluated falsy or because the run was canceled.
	StatusSkipped
)

var statusNames = [...]string{"pending", "running", "success", "failed", "skipped"}

// String returns the lowercase name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// ParseStatus converts a status name back into a Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, name) {
			return Status(i), nil
		}
	}
	return StatusPending, fmt.Errorf("unknown status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Result strings as observed by condition expressions through
// dependencies.<name>.result.
const (
	ResultSucceeded           = "Succeeded"
	ResultSucceededWithIssues = "SucceededWithIssues"
	ResultFailed              = "Failed"
	ResultCanceled            = "Canceled"
	ResultSkipped             = "Skipped"
)

// ResultString maps a terminal status to the result string seen by
// expressions. withIssues upgrades a failure tolerated by continueOnError, or a
// success with tolerated step failures, to SucceededWithIssues.
func ResultString(s Status, withIssues, canceled bool) string {
	switch s {
	case StatusSuccess:
		if withIssues {
			return ResultSucceededWithIssues
		}
		return ResultSucceeded
	case StatusFailed:
		if withIssues {
			return ResultSucceededWithIssues
		}
		return ResultFailed
	case StatusSkipped:
		if canceled {
			return ResultCanceled
		}
		return ResultSkipped
	default:
		return ""
	}
}

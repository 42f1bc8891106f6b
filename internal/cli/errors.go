package cli

import (
	"errors"

	"github.com/specialistvlad/stagegrid/internal/app"
)

// Exit codes reported through ExitError.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// classify maps an error returned while executing the command tree to an
// ExitError. Errors that did not come from a command body are usage errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	if errors.Is(err, app.ErrPipelineFailed) {
		return &ExitError{Code: ExitFailure, Message: err.Error()}
	}
	return usageError(err)
}

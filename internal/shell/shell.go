// Package shell is the host command-execution capability. It runs one
// command to completion, capturing its output while optionally streaming it,
// and kills the whole process tree when the context ends.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// Command describes one process to start.
type Command struct {
	// Argv is executed directly; Argv[0] is looked up in PATH.
	Argv []string
	Dir  string
	// Env is the complete environment as KEY=VALUE pairs.
	Env []string
	// Stdout and Stderr receive output as it is produced, in addition to
	// being captured in the Result. Either may be nil.
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of a command that ran.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Host runs commands as child processes of the current process.
type Host struct {
	// GracePeriod is how long a canceled process group gets between SIGTERM
	// and SIGKILL. Zero kills immediately.
	GracePeriod time.Duration
}

// NewHost returns a host runner with the given grace period.
func NewHost(grace time.Duration) *Host {
	return &Host{GracePeriod: grace}
}

// Run starts the command and waits for it. A non-zero exit is not an error:
// it is reported through Result.ExitCode. Errors are returned for commands
// that could not be started or that were interrupted by ctx, in which case
// ExitCode is -1.
func (h *Host) Run(ctx context.Context, c Command) (Result, error) {
	if len(c.Argv) == 0 {
		return Result{ExitCode: -1}, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = tee(&stdout, c.Stdout)
	cmd.Stderr = tee(&stderr, c.Stderr)
	configureProcessGroup(cmd, h.GracePeriod)
	cmd.WaitDelay = h.GracePeriod + time.Second

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, ctx.Err()
	}
	if err == nil {
		return res, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		res.ExitCode = exitError.ExitCode()
		return res, nil
	}

	res.ExitCode = -1
	return res, fmt.Errorf("failed to run %q: %w", c.Argv[0], err)
}

func tee(capture *bytes.Buffer, stream io.Writer) io.Writer {
	if stream == nil {
		return capture
	}
	return io.MultiWriter(capture, stream)
}

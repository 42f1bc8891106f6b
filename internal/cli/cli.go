package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specialistvlad/stagegrid/internal/app"
)

// Environment variables consulted when the matching flag is not set.
const (
	EnvLogLevel  = "STAGEGRID_LOG_LEVEL"
	EnvLogFormat = "STAGEGRID_LOG_FORMAT"
	EnvWorkers   = "STAGEGRID_WORKERS"
)

// globals are the persistent flags shared by every command.
type globals struct {
	logLevel  string
	logFormat string
	workers   int
}

// Execute runs the command line in args, writing all output to outW. The
// returned error is nil or an *ExitError.
func Execute(ctx context.Context, args []string, outW io.Writer) error {
	root := NewRootCommand(outW)
	root.SetArgs(args)
	return classify(root.ExecuteContext(ctx))
}

// NewRootCommand builds the stagegrid command tree.
func NewRootCommand(outW io.Writer) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "stagegrid",
		Short: "Run staged CI pipelines locally",
		Long: `stagegrid runs declarative stage/job/step pipelines on the local machine.

Stages and jobs form dependency graphs; independent jobs run in parallel,
matrix strategies fan a job out into instances, and conditions decide
what runs after a failure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(outW)
	root.SetErr(outW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.IntVar(&g.workers, "workers", app.DefaultWorkerCount, "Maximum number of jobs running at once.")

	root.AddCommand(newRunCommand(g, outW), newValidateCommand(g, outW), newGraphCommand(g, outW))
	return root
}

// pipelineArg requires exactly one PIPELINE argument.
func pipelineArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return &ExitError{
			Code:    ExitUsage,
			Message: fmt.Sprintf("%s: expected exactly one PIPELINE argument, got %d", cmd.CommandPath(), len(args)),
		}
	}
	return nil
}

// resolve applies environment fallbacks for flags the user did not set.
func (g *globals) resolve(cmd *cobra.Command) error {
	if env := os.Getenv(EnvLogLevel); env != "" && !cmd.Flag("log-level").Changed {
		g.logLevel = env
	}
	if env := os.Getenv(EnvLogFormat); env != "" && !cmd.Flag("log-format").Changed {
		g.logFormat = env
	}
	if env := os.Getenv(EnvWorkers); env != "" && !cmd.Flag("workers").Changed {
		n, err := strconv.Atoi(env)
		if err != nil {
			return &ExitError{Code: ExitUsage, Message: fmt.Sprintf("invalid %s %q: %v", EnvWorkers, env, err)}
		}
		g.workers = n
	}
	g.logLevel = strings.ToLower(g.logLevel)
	g.logFormat = strings.ToLower(g.logFormat)
	return nil
}

// config validates the assembled configuration.
func (g *globals) config(cmd *cobra.Command, cfg app.Config) (*app.Config, error) {
	if err := g.resolve(cmd); err != nil {
		return nil, err
	}
	cfg.LogLevel = g.logLevel
	cfg.LogFormat = g.logFormat
	cfg.WorkerCount = g.workers
	if cfg.WorkerCount == 0 {
		return nil, &ExitError{Code: ExitUsage, Message: "invalid workers: must be at least 1"}
	}

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError(err)
	}
	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, nil
}

// parseAssignments parses repeated key=value flag values.
func parseAssignments(flag string, values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, kv := range values {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("invalid --%s %q: expected key=value", flag, kv)}
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

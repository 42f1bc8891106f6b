package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/specialistvlad/stagegrid/internal/app"
)

func failure(err error) error {
	return &ExitError{Code: ExitFailure, Message: err.Error()}
}

func newRunCommand(g *globals, outW io.Writer) *cobra.Command {
	var (
		vars, params []string
		cfg          app.Config
		jobTimeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run PIPELINE",
		Short: "Execute a pipeline and print a summary",
		Args:  pipelineArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg.PipelinePath = args[0]
			cfg.JobTimeout = jobTimeout
			if cfg.Variables, err = parseAssignments("var", vars); err != nil {
				return err
			}
			if cfg.Parameters, err = parseAssignments("param", params); err != nil {
				return err
			}
			config, err := g.config(cmd, cfg)
			if err != nil {
				return err
			}

			if _, err := app.NewApp(outW, config).Run(cmd.Context()); err != nil {
				return failure(err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&vars, "var", nil, "Override a pipeline variable (key=value, repeatable).")
	f.StringArrayVar(&params, "param", nil, "Set a template parameter (key=value, repeatable).")
	f.StringVar(&cfg.TasksPath, "tasks", "", "Directory of .hcl task manifests.")
	f.StringVar(&cfg.WorkDir, "workdir", "", "Working directory of steps. Defaults to the pipeline file's directory.")
	f.IntVar(&cfg.HealthcheckPort, "healthcheck-port", 0, "Port for the HTTP status server. 0 is disabled.")
	f.StringVar(&cfg.LogDir, "log-dir", "", "Directory to store the output of every step.")
	f.StringVar(&cfg.EventsOut, "events-out", "", "File to record execution events to, CBOR encoded.")
	f.StringVar(&cfg.SocketIOURL, "socketio", "", "Socket.IO server URL to forward execution events to.")
	f.BoolVar(&cfg.TUI, "tui", false, "Show an interactive progress view.")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Print step output as it is produced.")
	f.DurationVar(&jobTimeout, "job-timeout", 0, "Timeout for jobs that declare none. 0 means no timeout.")
	return cmd
}

func newValidateCommand(g *globals, outW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate PIPELINE",
		Short: "Check a pipeline without running it",
		Args:  pipelineArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := g.config(cmd, app.Config{PipelinePath: args[0]})
			if err != nil {
				return err
			}
			graph, err := app.NewApp(io.Discard, config).LoadGraph(cmd.Context())
			if err != nil {
				return failure(err)
			}

			for _, w := range graph.Warnings {
				fmt.Fprintf(outW, "warning: %s\n", w)
			}
			fmt.Fprintf(outW, "pipeline '%s' is valid: %d stages, %d jobs\n",
				graph.Pipeline.Name, graph.Stages.Len(), graph.JobCount())
			return nil
		},
	}
	return cmd
}

func newGraphCommand(g *globals, outW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph PIPELINE",
		Short: "Print the execution order of stages and jobs",
		Long: `Print the topological layers of the pipeline: stages in the same layer
may run in parallel, and so may the jobs in the same layer of a stage.`,
		Args: pipelineArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := g.config(cmd, app.Config{PipelinePath: args[0]})
			if err != nil {
				return err
			}
			graph, err := app.NewApp(io.Discard, config).LoadGraph(cmd.Context())
			if err != nil {
				return failure(err)
			}

			layers, err := graph.Stages.Layers()
			if err != nil {
				return failure(err)
			}
			for i, layer := range layers {
				fmt.Fprintf(outW, "layer %d\n", i+1)
				for _, name := range layer {
					sn, _ := graph.Stage(name)
					fmt.Fprintf(outW, "  stage %s\n", name)
					jobLayers, err := sn.Jobs.Layers()
					if err != nil {
						return failure(err)
					}
					for j, jobs := range jobLayers {
						fmt.Fprintf(outW, "    %d: %s\n", j+1, strings.Join(jobs, ", "))
					}
				}
			}
			return nil
		},
	}
	return cmd
}

package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/events"
	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/specialistvlad/stagegrid/internal/shell"
)

// processGrace is how long a canceled step gets to exit before it is killed.
const processGrace = 5 * time.Second

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	runner  shell.Runner
	sinks   []events.Sink
	metrics *events.MetricsSink

	httpServer *http.Server

	mu     sync.Mutex
	result *model.ExecutionResult
}

// Option customizes an App.
type Option func(*App)

// WithRunner replaces the host command runner, typically with a fake.
func WithRunner(r shell.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithSinks adds event sinks on top of the ones derived from Config.
func WithSinks(sinks ...events.Sink) Option {
	return func(a *App) { a.sinks = append(a.sinks, sinks...) }
}

// NewApp is the constructor for the main application. It returns an App
// with its own isolated logger; nothing is loaded until Load or Run.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) *App {
	a := &App{
		outW:    outW,
		logger:  newLogger(cfg.LogLevel, cfg.LogFormat, outW),
		config:  cfg,
		runner:  shell.NewHost(processGrace),
		metrics: events.NewMetricsSink(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger.Debug("Logger configured successfully.")
	return a
}

// Result returns the result of the last completed run, or nil.
func (a *App) Result() *model.ExecutionResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

func (a *App) setResult(res *model.ExecutionResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result = res
}

// Metrics exposes the run metrics served on /metrics.
func (a *App) Metrics() *events.MetricsSink {
	return a.metrics
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

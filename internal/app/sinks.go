package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/events"
)

// runSinks is the set of event consumers attached to one run.
type runSinks struct {
	fanout  events.Fanout
	program *tea.Program
	closers []io.Closer
}

// Close releases every sink that holds a file or connection.
func (s *runSinks) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// openSinks builds the sinks selected by the configuration. Metrics are
// always collected so the status server can serve them.
func (a *App) openSinks(ctx context.Context, title string) (*runSinks, error) {
	logger := ctxlog.FromContext(ctx)
	s := &runSinks{fanout: events.Fanout{a.metrics}}

	if a.config.TUI {
		s.program = tea.NewProgram(events.NewTUIModel(title), tea.WithOutput(a.outW), tea.WithContext(ctx))
		s.fanout = append(s.fanout, events.NewTUISink(s.program))
		logger.Debug("Interactive view enabled.")
	} else {
		s.fanout = append(s.fanout, events.NewConsoleSink(a.outW, a.config.Verbose))
	}

	if a.config.EventsOut != "" {
		sink, err := events.CreateCBORLog(a.config.EventsOut)
		if err != nil {
			return nil, err
		}
		s.fanout = append(s.fanout, sink)
		s.closers = append(s.closers, sink)
		logger.Debug("Recording events.", "path", a.config.EventsOut)
	}

	if a.config.SocketIOURL != "" {
		sink, err := events.DialSocketIO(ctx, a.config.SocketIOURL, events.SocketIOOptions{})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to connect event forwarding: %w", err)
		}
		s.fanout = append(s.fanout, sink)
		s.closers = append(s.closers, sink)
	}

	s.fanout = append(s.fanout, a.sinks...)
	return s, nil
}

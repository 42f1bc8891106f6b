package events

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/specialistvlad/stagegrid/internal/model"
)

// palette holds the styles shared by the console sink and the TUI.
type palette struct {
	title   lipgloss.Style
	success lipgloss.Style
	failed  lipgloss.Style
	issues  lipgloss.Style
	skipped lipgloss.Style
	running lipgloss.Style
	faint   lipgloss.Style
}

func newPalette(r *lipgloss.Renderer) palette {
	return palette{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		success: r.NewStyle().Foreground(lipgloss.Color("42")),
		failed:  r.NewStyle().Foreground(lipgloss.Color("196")),
		issues:  r.NewStyle().Foreground(lipgloss.Color("214")),
		skipped: r.NewStyle().Foreground(lipgloss.Color("241")),
		running: r.NewStyle().Foreground(lipgloss.Color("39")),
		faint:   r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// badge renders the status marker for a node.
func (p palette) badge(s model.Status, withIssues bool) string {
	switch {
	case s == model.StatusSuccess && withIssues:
		return p.issues.Render("!")
	case s == model.StatusSuccess:
		return p.success.Render("✓")
	case s == model.StatusFailed:
		return p.failed.Render("✗")
	case s == model.StatusSkipped:
		return p.skipped.Render("-")
	case s == model.StatusRunning:
		return p.running.Render("▶")
	default:
		return p.faint.Render("·")
	}
}

// ConsoleSink prints progress lines. With Verbose set, step output is echoed
// as it arrives.
type ConsoleSink struct {
	mu      sync.Mutex
	w       io.Writer
	p       palette
	Verbose bool
}

// NewConsoleSink creates a console sink writing to w. Colors are used only
// when w is a terminal.
func NewConsoleSink(w io.Writer, verbose bool) *ConsoleSink {
	return &ConsoleSink{w: w, p: newPalette(lipgloss.NewRenderer(w)), Verbose: verbose}
}

// Handle implements Sink.
func (c *ConsoleSink) Handle(_ context.Context, ev model.ExecutionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var line string
	switch ev.Kind {
	case model.EventPipelineStarted:
		line = c.p.title.Render("Running pipeline")
	case model.EventStageStarted:
		line = fmt.Sprintf("%s stage %s", c.p.badge(model.StatusRunning, false), ev.Stage)
	case model.EventJobStarted:
		line = fmt.Sprintf("  %s %s.%s", c.p.badge(model.StatusRunning, false), ev.Stage, ev.Job)
	case model.EventJobCompleted:
		line = fmt.Sprintf("  %s %s.%s %s%s", c.p.badge(ev.Status, false), ev.Stage, ev.Job,
			ev.Status, c.p.faint.Render(formatDuration(ev.Duration)))
		if ev.Error != "" {
			line += "\n    " + c.p.failed.Render(ev.Error)
		}
	case model.EventStageCompleted:
		line = fmt.Sprintf("%s stage %s %s%s", c.p.badge(ev.Status, false), ev.Stage, ev.Status,
			c.p.faint.Render(formatDuration(ev.Duration)))
	case model.EventStepOutput:
		if !c.Verbose {
			return nil
		}
		prefix := c.p.faint.Render(fmt.Sprintf("    %s.%s/%s |", ev.Stage, ev.Job, ev.Step))
		var sb strings.Builder
		for _, l := range strings.Split(strings.TrimRight(ev.Chunk, "\n"), "\n") {
			sb.WriteString(prefix + " " + l + "\n")
		}
		_, err := io.WriteString(c.w, sb.String())
		return err
	case model.EventPipelineCompleted:
		if ev.Result == nil {
			return nil
		}
		return RenderSummary(c.w, ev.Result)
	default:
		return nil
	}
	_, err := fmt.Fprintln(c.w, line)
	return err
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return " (" + d.Round(time.Millisecond).String() + ")"
}

// RenderSummary writes a per-stage, per-job status table of res to w.
func RenderSummary(w io.Writer, res *model.ExecutionResult) error {
	p := newPalette(lipgloss.NewRenderer(w))
	nameCol := lipgloss.NewStyle().Width(summaryWidth(res))

	var sb strings.Builder
	sb.WriteString(p.title.Render("Summary") + "\n")
	for _, s := range res.Stages {
		fmt.Fprintf(&sb, "%s %s %s\n", p.badge(s.Status, s.WithIssues), nameCol.Render(s.Name), s.Result())
		for _, j := range s.Jobs {
			fmt.Fprintf(&sb, "  %s %s %s%s\n", p.badge(j.Status, j.WithIssues),
				nameCol.Render(j.Name), j.Result(), p.faint.Render(formatDuration(j.Duration)))
		}
	}
	status := p.success.Render("Pipeline succeeded")
	if res.Status != model.StatusSuccess {
		status = p.failed.Render("Pipeline " + res.Status.String())
	}
	fmt.Fprintf(&sb, "%s%s\n", status, p.faint.Render(formatDuration(res.Duration)))

	_, err := io.WriteString(w, sb.String())
	return err
}

func summaryWidth(res *model.ExecutionResult) int {
	width := 0
	for _, s := range res.Stages {
		width = max(width, len(s.Name))
		for _, j := range s.Jobs {
			width = max(width, len(j.Name))
		}
	}
	return width + 2
}

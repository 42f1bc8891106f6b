package events

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/specialistvlad/stagegrid/internal/model"
)

// EventMsg carries an execution event into the TUI program.
type EventMsg model.ExecutionEvent

type tuiRow struct {
	label  string
	indent int
	status model.Status
	issues bool
	step   string
}

// TUIModel is a bubbletea model showing live stage and job status.
type TUIModel struct {
	title  string
	rows   []tuiRow
	index  map[string]int
	result *model.ExecutionResult
	p      palette
}

// NewTUIModel creates an empty progress view.
func NewTUIModel(title string) TUIModel {
	return TUIModel{
		title: title,
		index: make(map[string]int),
		p:     newPalette(lipgloss.DefaultRenderer()),
	}
}

// Init implements tea.Model.
func (m TUIModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model. The program quits on q, ctrl+c, or once the
// pipeline has completed.
func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case EventMsg:
		m = m.apply(model.ExecutionEvent(msg))
		if msg.Kind == model.EventPipelineCompleted {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m TUIModel) apply(ev model.ExecutionEvent) TUIModel {
	switch ev.Kind {
	case model.EventStageStarted, model.EventStageCompleted:
		m = m.set(ev.Stage, ev.Stage, 0, ev.Status, "")
	case model.EventJobStarted, model.EventJobCompleted:
		m = m.set(ev.Stage+"."+ev.Job, ev.Job, 1, ev.Status, "")
	case model.EventStepStarted:
		m = m.set(ev.Stage+"."+ev.Job, ev.Job, 1, model.StatusRunning, ev.Step)
	case model.EventPipelineCompleted:
		m.result = ev.Result
		if ev.Result != nil {
			for _, s := range ev.Result.Stages {
				for _, j := range s.Jobs {
					if i, ok := m.index[s.Name+"."+j.Name]; ok {
						m.rows[i].issues = j.WithIssues
					}
				}
			}
		}
	}
	return m
}

// set updates or inserts a row. rows is copied so earlier model values stay
// unchanged.
func (m TUIModel) set(key, label string, indent int, status model.Status, step string) TUIModel {
	rows := make([]tuiRow, len(m.rows), len(m.rows)+1)
	copy(rows, m.rows)
	index := make(map[string]int, len(m.index)+1)
	for k, v := range m.index {
		index[k] = v
	}

	i, ok := index[key]
	if !ok {
		// Jobs are inserted after the last row of their stage.
		pos := len(rows)
		if indent > 0 {
			stage := strings.SplitN(key, ".", 2)[0]
			if si, found := index[stage]; found {
				pos = si + 1
				for pos < len(rows) && rows[pos].indent > 0 {
					pos++
				}
			}
		}
		rows = append(rows, tuiRow{})
		copy(rows[pos+1:], rows[pos:])
		rows[pos] = tuiRow{label: label, indent: indent}
		for k, v := range index {
			if v >= pos {
				index[k] = v + 1
			}
		}
		index[key] = pos
		i = pos
	}
	rows[i].status = status
	rows[i].step = step

	m.rows = rows
	m.index = index
	return m
}

// View implements tea.Model.
func (m TUIModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.p.title.Render(m.title) + "\n\n")
	for _, r := range m.rows {
		sb.WriteString(strings.Repeat("  ", r.indent))
		fmt.Fprintf(&sb, "%s %s %s", m.p.badge(r.status, r.issues), r.label, m.p.faint.Render(r.status.String()))
		if r.step != "" && r.status == model.StatusRunning {
			sb.WriteString(m.p.faint.Render(" > " + r.step))
		}
		sb.WriteString("\n")
	}
	if m.result != nil {
		sb.WriteString("\n")
		if m.result.Status == model.StatusSuccess {
			sb.WriteString(m.p.success.Render("Pipeline succeeded"))
		} else {
			sb.WriteString(m.p.failed.Render("Pipeline " + m.result.Status.String()))
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("\n" + m.p.faint.Render("q: quit") + "\n")
	}
	return sb.String()
}

// TUISink forwards events to a running bubbletea program.
type TUISink struct {
	program *tea.Program
}

// NewTUISink creates a sink that sends every event to program.
func NewTUISink(program *tea.Program) *TUISink {
	return &TUISink{program: program}
}

// Handle implements Sink.
func (s *TUISink) Handle(_ context.Context, ev model.ExecutionEvent) error {
	s.program.Send(EventMsg(ev))
	return nil
}

package events

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	dto "github.com/prometheus/client_model/go"
	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *model.ExecutionResult {
	return &model.ExecutionResult{
		RunID:    "run-1",
		Pipeline: "ci",
		Status:   model.StatusFailed,
		Stages: []model.StageResult{{
			Name:   "build",
			Status: model.StatusFailed,
			Jobs: []model.JobResult{
				{Name: "lint", Stage: "build", Status: model.StatusSuccess, Duration: time.Second},
				{Name: "test", Stage: "build", Status: model.StatusFailed, Error: "exit status 1"},
			},
		}},
	}
}

func sampleEvents() []model.ExecutionEvent {
	at := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	return []model.ExecutionEvent{
		{Kind: model.EventPipelineStarted, RunID: "run-1", Time: at, Status: model.StatusRunning},
		{Kind: model.EventStageStarted, RunID: "run-1", Time: at, Stage: "build", Status: model.StatusRunning},
		{Kind: model.EventJobStarted, RunID: "run-1", Time: at, Stage: "build", Job: "lint", Status: model.StatusRunning},
		{Kind: model.EventStepStarted, RunID: "run-1", Time: at, Stage: "build", Job: "lint", Step: "vet", Status: model.StatusRunning},
		{Kind: model.EventStepOutput, RunID: "run-1", Time: at, Stage: "build", Job: "lint", Step: "vet", Status: model.StatusRunning, Stream: model.StreamStdout, Chunk: "ok\n"},
		{Kind: model.EventStepCompleted, RunID: "run-1", Time: at, Stage: "build", Job: "lint", Step: "vet", Status: model.StatusSuccess, Duration: 250 * time.Millisecond},
		{Kind: model.EventJobCompleted, RunID: "run-1", Time: at, Stage: "build", Job: "lint", Status: model.StatusSuccess, Duration: time.Second},
		{Kind: model.EventJobCompleted, RunID: "run-1", Time: at, Stage: "build", Job: "test", Status: model.StatusSkipped},
		{Kind: model.EventStageCompleted, RunID: "run-1", Time: at, Stage: "build", Status: model.StatusFailed, Duration: 2 * time.Second},
		{Kind: model.EventPipelineCompleted, RunID: "run-1", Time: at, Status: model.StatusFailed, Result: sampleResult()},
	}
}

func handleAll(t *testing.T, s Sink, events []model.ExecutionEvent) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, s.Handle(context.Background(), ev))
	}
}

func TestConsoleSink(t *testing.T) {
	testCases := []struct {
		name     string
		verbose  bool
		contains []string
		absent   []string
	}{
		{
			name:     "quiet",
			contains: []string{"stage build", "build.lint success (1s)", "Summary", "Pipeline failed"},
			absent:   []string{"| ok"},
		},
		{
			name:     "verbose echoes step output",
			verbose:  true,
			contains: []string{"build.lint/vet | ok"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			handleAll(t, NewConsoleSink(&buf, tc.verbose), sampleEvents())

			out := buf.String()
			for _, s := range tc.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tc.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "build")
	assert.Contains(t, out, "Succeeded")
	assert.Contains(t, out, "Failed")
	assert.Contains(t, out, "Pipeline failed")
}

func TestCBORSink_RoundTrip(t *testing.T) {
	// --- Arrange ---
	path := filepath.Join(t.TempDir(), "events.cbor")
	sink, err := CreateCBORLog(path)
	require.NoError(t, err)
	want := sampleEvents()

	// --- Act ---
	handleAll(t, sink, want)
	require.NoError(t, sink.Close())
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := ReadCBORLog(f)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Kind, got[i].Kind)
		assert.Equal(t, want[i].Status, got[i].Status)
		assert.Equal(t, want[i].Job, got[i].Job)
		assert.Equal(t, want[i].Chunk, got[i].Chunk)
		assert.Equal(t, want[i].Duration, got[i].Duration)
		assert.True(t, want[i].Time.Equal(got[i].Time), "time of event %d", i)
	}
	last := got[len(got)-1].Result
	require.NotNil(t, last)
	assert.Equal(t, model.StatusFailed, last.Status)
	job, ok := last.Job("build", "test")
	require.True(t, ok)
	assert.Equal(t, "exit status 1", job.Error)
}

func TestReadCBORLog_Truncated(t *testing.T) {
	var buf bytes.Buffer
	handleAll(t, NewCBORSink(&buf), sampleEvents()[:2])
	data := buf.Bytes()[:buf.Len()-3]

	got, err := ReadCBORLog(bytes.NewReader(data))

	assert.Error(t, err)
	assert.Len(t, got, 1)
}

func TestTUIModel(t *testing.T) {
	var m tea.Model = NewTUIModel("ci")
	var cmd tea.Cmd
	for _, ev := range sampleEvents() {
		m, cmd = m.Update(EventMsg(ev))
	}

	view := m.View()
	assert.Contains(t, view, "ci")
	assert.Contains(t, view, "build")
	assert.Contains(t, view, "lint")
	assert.Contains(t, view, "Pipeline failed")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTUIModel_JobsStayUnderTheirStage(t *testing.T) {
	var m tea.Model = NewTUIModel("ci")
	for _, ev := range []model.ExecutionEvent{
		{Kind: model.EventStageStarted, Stage: "a", Status: model.StatusRunning},
		{Kind: model.EventStageStarted, Stage: "b", Status: model.StatusRunning},
		{Kind: model.EventJobStarted, Stage: "b", Job: "b1", Status: model.StatusRunning},
		{Kind: model.EventJobStarted, Stage: "a", Job: "a1", Status: model.StatusRunning},
	} {
		m, _ = m.Update(EventMsg(ev))
	}

	rows := m.(TUIModel).rows
	labels := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.label
	}
	assert.Equal(t, []string{"a", "a1", "b", "b1"}, labels)
}

func TestTUIModel_QuitKey(t *testing.T) {
	_, cmd := NewTUIModel("ci").Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func findMetric(t *testing.T, s *MetricsSink, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := s.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m
		}
	}
	return nil
}

func TestMetricsSink(t *testing.T) {
	s := NewMetricsSink()
	handleAll(t, s, sampleEvents())

	jobsOK := findMetric(t, s, "stagegrid_nodes_completed_total", map[string]string{"kind": "job", "status": "success"})
	require.NotNil(t, jobsOK)
	assert.Equal(t, 1.0, jobsOK.GetCounter().GetValue())

	jobsSkipped := findMetric(t, s, "stagegrid_nodes_completed_total", map[string]string{"kind": "job", "status": "skipped"})
	require.NotNil(t, jobsSkipped)
	assert.Equal(t, 1.0, jobsSkipped.GetCounter().GetValue())

	running := findMetric(t, s, "stagegrid_nodes_running", map[string]string{"kind": "job"})
	require.NotNil(t, running)
	assert.Zero(t, running.GetGauge().GetValue())

	durations := findMetric(t, s, "stagegrid_node_duration_seconds", map[string]string{"kind": "job"})
	require.NotNil(t, durations)
	assert.Equal(t, uint64(1), durations.GetHistogram().GetSampleCount())

	runs := findMetric(t, s, "stagegrid_pipeline_runs_total", map[string]string{"status": "failed"})
	require.NotNil(t, runs)
	assert.Equal(t, 1.0, runs.GetCounter().GetValue())

	out := findMetric(t, s, "stagegrid_step_output_bytes_total", nil)
	require.NotNil(t, out)
	assert.Equal(t, 3.0, out.GetCounter().GetValue())
}

func TestEventPayload(t *testing.T) {
	ev := sampleEvents()[4]

	payload, err := eventPayload(ev)

	require.NoError(t, err)
	assert.Equal(t, "step.output", payload["kind"])
	assert.Equal(t, "running", payload["status"])
	assert.Equal(t, "ok\n", payload["chunk"])
	assert.Equal(t, "vet", payload["step"])
}

func TestDialSocketIO_InvalidURL(t *testing.T) {
	_, err := DialSocketIO(context.Background(), "not-a-url", SocketIOOptions{})
	assert.ErrorContains(t, err, "scheme and host are required")
}

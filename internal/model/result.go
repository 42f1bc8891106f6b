// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Results are created once, when a node reaches a terminal status, and are
// read-only afterwards.
package model

import "time"

// StepResult records the outcome of one step.
type StepResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	ExitCode  int           `json:"exitCode"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	LogPath   string        `json:"logPath,omitempty"`
	LogDigest string        `json:"logDigest,omitempty"`
}

// JobResult records the outcome of one job instance.
type JobResult struct {
	Name     string `json:"name"`
	Template string `json:"template"`
	Stage    string `json:"stage"`
	Status   Status `json:"status"`
	// WithIssues is set when the job succeeded despite tolerated step
	// failures, or failed while marked continueOnError.
	WithIssues      bool              `json:"withIssues,omitempty"`
	ContinueOnError bool              `json:"continueOnError,omitempty"`
	Canceled        bool              `json:"canceled,omitempty"`
	Matrix          map[string]string `json:"matrix,omitempty"`
	Outputs         map[string]string `json:"outputs,omitempty"`
	Steps           []StepResult      `json:"steps"`
	StartedAt       time.Time         `json:"startedAt"`
	Duration        time.Duration     `json:"duration"`
	Error           string            `json:"error,omitempty"`
}

// Result returns the result string seen by condition expressions.
func (r *JobResult) Result() string {
	return ResultString(r.Status, r.WithIssues, r.Canceled)
}

// StageResult records the outcome of one stage.
type StageResult struct {
	Name       string        `json:"name"`
	Status     Status        `json:"status"`
	WithIssues bool          `json:"withIssues,omitempty"`
	Canceled   bool          `json:"canceled,omitempty"`
	Jobs       []JobResult   `json:"jobs"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Result returns the result string seen by condition expressions.
func (r *StageResult) Result() string {
	return ResultString(r.Status, r.WithIssues, r.Canceled)
}

// Job finds a job result by instance name.
func (r *StageResult) Job(name string) (*JobResult, bool) {
	for i := range r.Jobs {
		if r.Jobs[i].Name == name {
			return &r.Jobs[i], true
		}
	}
	return nil, false
}

// ExecutionResult aggregates every terminal status of a run.
type ExecutionResult struct {
	RunID     string        `json:"runId"`
	Pipeline  string        `json:"pipeline"`
	Status    Status        `json:"status"`
	Canceled  bool          `json:"canceled,omitempty"`
	Stages    []StageResult `json:"stages"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Stage finds a stage result by name.
func (r *ExecutionResult) Stage(name string) (*StageResult, bool) {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i], true
		}
	}
	return nil, false
}

// Job finds a job result by stage and instance name.
func (r *ExecutionResult) Job(stage, job string) (*JobResult, bool) {
	s, ok := r.Stage(stage)
	if !ok {
		return nil, false
	}
	return s.Job(job)
}

// FailedNodes returns "stage" and "stage.job" names of every failed node, in
// result order.
func (r *ExecutionResult) FailedNodes() []string {
	var failed []string
	for _, s := range r.Stages {
		for _, j := range s.Jobs {
			if j.Status == StatusFailed && !j.ContinueOnError {
				failed = append(failed, s.Name+"."+j.Name)
			}
		}
		if s.Status == StatusFailed && len(s.Jobs) == 0 {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

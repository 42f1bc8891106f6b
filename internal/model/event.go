// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package model

import "time"

// EventKind identifies the transition an ExecutionEvent describes.
type EventKind string

const (
	EventPipelineStarted   EventKind = "pipeline.started"
	EventStageStarted      EventKind = "stage.started"
	EventStageCompleted    EventKind = "stage.completed"
	EventJobStarted        EventKind = "job.started"
	EventJobCompleted      EventKind = "job.completed"
	EventStepStarted       EventKind = "step.started"
	EventStepCompleted     EventKind = "step.completed"
	EventStepOutput        EventKind = "step.output"
	EventPipelineCompleted EventKind = "pipeline.completed"
)

// Output stream names carried by step.output events.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// ExecutionEvent is a single progress notification. Only the fields relevant
// to Kind are populated.
type ExecutionEvent struct {
	Kind     EventKind        `json:"kind" cbor:"kind"`
	RunID    string           `json:"runId" cbor:"runId"`
	Time     time.Time        `json:"time" cbor:"time"`
	Stage    string           `json:"stage,omitempty" cbor:"stage,omitempty"`
	Job      string           `json:"job,omitempty" cbor:"job,omitempty"`
	Step     string           `json:"step,omitempty" cbor:"step,omitempty"`
	Status   Status           `json:"status" cbor:"status"`
	Stream   string           `json:"stream,omitempty" cbor:"stream,omitempty"`
	Chunk    string           `json:"chunk,omitempty" cbor:"chunk,omitempty"`
	Error    string           `json:"error,omitempty" cbor:"error,omitempty"`
	Duration time.Duration    `json:"duration,omitempty" cbor:"duration,omitempty"`
	Result   *ExecutionResult `json:"result,omitempty" cbor:"result,omitempty"`
}

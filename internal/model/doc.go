// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model provides the format-agnostic representation of a pipeline
// and of everything a run produces from it.
//
// # Core Concepts
//
//   - Pipeline: the root container. It owns an ordered list of stages, the
//     pipeline-wide environment and the pipeline variables.
//
//   - Stage / Job / Step: the three nesting levels. Steps inside a job run
//     strictly in order; jobs and stages may run in parallel, subject to their
//     dependsOn declarations and condition expressions.
//
//   - Strategy / Matrix: a job carrying a matrix is a template. It is never
//     executed itself; the matrix package expands it into instances.
//
//   - StepResult / JobResult / StageResult / ExecutionResult: immutable records
//     created by the executor once a node reaches a terminal status.
//
//   - ExecutionEvent: a progress notification describing one status
//     transition or one chunk of step output.
//
// The model is produced by the pipelinefile package and borrowed, read-only,
// by the graph builder and the executor for the duration of a run.
package model

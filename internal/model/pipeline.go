// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the declarative pipeline structure. Expressions are kept
// as raw source text; the expr package parses them lazily, at the moment the
// executor needs them.
package model

import "time"

// DefaultName is used for the implicit stage or job created by the
// single-stage and single-job shorthands.
const DefaultName = "__default"

// Pipeline is the root of a parsed pipeline file.
type Pipeline struct {
	Name        string
	Description string
	Variables   map[string]string
	Env         map[string]string
	Stages      []*Stage

	// Source is the path the pipeline was loaded from, if any.
	Source string
}

// Stage is a named group of jobs.
type Stage struct {
	Name        string
	DisplayName string
	// DependsOn lists stage names. A nil slice means "omitted", which defaults
	// to the previous stage; a non-nil empty slice means no dependencies.
	DependsOn []string
	Condition string
	Variables map[string]string
	Jobs      []*Job
}

// Job is a sequence of steps executed on one agent.
type Job struct {
	Name            string
	DisplayName     string
	DependsOn       []string
	Condition       string
	ContinueOnError bool
	Timeout         time.Duration
	Env             map[string]string
	Variables       map[string]string
	Strategy        *Strategy
	Steps           []*Step
}

// IsTemplate reports whether the job carries a matrix and must be expanded.
func (j *Job) IsTemplate() bool {
	return j.Strategy != nil && j.Strategy.Matrix != nil
}

// Strategy holds the matrix declaration and its concurrency cap.
type Strategy struct {
	Matrix *Matrix
	// MaxParallel caps concurrently running instances of this job template.
	// Zero means unbounded (subject only to the global worker count).
	MaxParallel int
}

// Matrix is one of: an ordered list of dimensions whose cartesian product
// yields the instances, an ordered list of named legs each carrying its own
// variables, or a single expression that evaluates to either shape.
type Matrix struct {
	Dimensions []Dimension
	Legs       []Leg
	Expr       string
}

// Leg is one explicitly named matrix instance.
type Leg struct {
	Name      string
	Variables map[string]string
}

// Dimension is one named axis of a matrix. Exactly one of Values or Expr is set.
type Dimension struct {
	Name   string
	Values []string
	Expr   string
}

// Step is the atomic unit of work inside a job.
type Step struct {
	Name            string
	DisplayName     string
	Action          Action
	Env             map[string]string
	ContinueOnError bool
	Condition       string
}

// Action is a closed variant: exactly one field is non-nil.
type Action struct {
	Command *CommandAction
	Shell   *ShellAction
	Task    *TaskAction
}

// Kind returns a short name for the populated variant.
func (a Action) Kind() string {
	switch {
	case a.Command != nil:
		return "command"
	case a.Shell != nil:
		return "shell"
	case a.Task != nil:
		return "task"
	default:
		return "none"
	}
}

// CommandAction runs an argv directly, without a shell.
type CommandAction struct {
	Argv []string
}

// ShellAction runs a script through an interpreter. An empty interpreter
// means the platform default shell.
type ShellAction struct {
	Interpreter string
	Script      string
}

// TaskAction references a named task manifest resolved at runtime.
type TaskAction struct {
	Ref    string
	Inputs map[string]string
}

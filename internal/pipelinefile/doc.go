// Package pipelinefile reads pipeline definitions from disk.
//
// Pipelines are authored as YAML, or as JSON extended with comments and
// trailing commas (.json, .jsonc). Both are decoded through a yaml.v3 node
// tree so that errors carry line and column information and mapping order
// is preserved where it matters (matrix dimensions).
//
// The typical flow:
//
//  1. Parse or ParseBytes: file bytes -> model.Pipeline
//  2. ResolveTemplates: substitute ${{ }} against variables and parameters
//  3. graph.Build: expand matrices and build the execution graph
//
// Marshal writes the canonical YAML form of a pipeline; parsing it again
// yields an equal pipeline.
package pipelinefile

// Package graph builds the execution graph of a pipeline.
//
// # Shape
//
// The graph has two levels. The top level is a DAG of stages. Each stage
// owns a second DAG over its job instances, produced by expanding every job
// template through the matrix package:
//
//	┌──────────────────────────────────────────┐
//	│ stages:   build ──► test ──► deploy      │
//	└─────────────┬────────────────────────────┘
//	              ▼
//	┌──────────────────────────────────────────┐
//	│ build:  lint ──► compile.linux           │
//	│              └─► compile.windows         │
//	└──────────────────────────────────────────┘
//
// Node identities are nodeid addresses: `build` for a stage,
// `build.compile[1]` for a matrix instance and `build.lint` for a plain job.
// Inside a stage DAG nodes are keyed by instance name.
//
// # Dependency resolution
//
// Dependency names are resolved once, at build time:
//   - A stage without dependsOn depends on the stage declared before it; an
//     explicit empty list means no dependencies.
//   - A job dependency naming a template resolves to every instance of that
//     template, so a matrix fan-out is joined automatically. Naming a single
//     instance (`compile.linux`) is also allowed.
//   - A dangling name is a GraphError of kind UnknownDependency and a cycle is
//     a GraphError of kind CycleDetected carrying the cycle path.
//
// Build never evaluates conditions; those are evaluated by the executor right
// before a node is scheduled. It does parse them to report references to
// unknown dependencies as warnings.
package graph

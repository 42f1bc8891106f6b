// Package scheduler drives a dag to completion.
//
// # How It Works
//
// The scheduler is completion-driven rather than polling:
//  1. Ask the graph for its ready set (pending nodes whose dependencies are
//     all terminal, in declaration order).
//  2. Mark each ready node Running and hand it to the worker pool, subject to
//     the global worker cap and the cap of the node's concurrency group.
//  3. Block until one task finishes, record its terminal status on the graph
//     and go back to 1.
//
// The loop ends when every node is terminal. If nothing is running and no
// node can become ready the graph is deadlocked, which Run reports as an
// error.
//
// The scheduler never decides whether a node should run: the Task callback
// evaluates conditions and returns Skipped when appropriate. The scheduler
// is the only writer of node statuses on the graph it drives.
package scheduler

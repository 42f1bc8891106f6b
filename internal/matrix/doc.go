// Package matrix expands job templates into concrete job instances.
//
// A job with a strategy.matrix is a template. Expansion computes the
// cartesian product of its dimensions in declared order (the last dimension
// varies fastest), numbers every combination by its position in that product,
// and produces one Instance per combination. Each instance carries a variable
// overlay (dimension name -> chosen value) merged over the job's own
// variables, with the overlay taking precedence.
//
// Instances do not copy the job definition. They live in an Arena next to the
// template they came from and refer to it by index, so the identity used for
// dependency resolution stays stable.
package matrix

package expr

import (
	"github.com/specialistvlad/stagegrid/internal/model"
)

func isSucceeded(result string) bool {
	return result == model.ResultSucceeded || result == model.ResultSucceededWithIssues
}

func isFailed(result string) bool {
	return result == model.ResultFailed
}

func isSucceededOrFailed(result string) bool {
	return isSucceeded(result) || isFailed(result)
}

// statusBuiltin builds a status predicate.
//
// Without arguments it consults the node's direct dependencies (stage and job
// scope) or the enclosing job's status (step scope). With arguments it
// consults the named dependencies. For succeeded-style predicates every
// consulted dependency must match, so an empty set is true; with anyMatch a
// single match suffices, so an empty set is false. All status predicates are
// false once the run is canceled.
func statusBuiltin(pred func(string) bool, anyMatch bool) func(*evaluator, *Call, []Value) (Value, error) {
	return func(ev *evaluator, c *Call, args []Value) (Value, error) {
		if ev.ctx.Canceled {
			return Bool(false), nil
		}

		var results []string
		switch {
		case len(args) > 0:
			for i, a := range args {
				if a.Kind() != KindString {
					return Value{}, evalErrorf(InvalidArguments, c.At, "%s() argument %d must be a dependency name, got %s", c.Name, i+1, a.Kind())
				}
				dep, ok := ev.ctx.Dependency(a.Str())
				if !ok {
					return Value{}, evalErrorf(InvalidArguments, c.At, "%s() refers to '%s', which is not a dependency", c.Name, a.Str())
				}
				results = append(results, dep.Result)
			}
		case ev.ctx.Scope == ScopeStep:
			results = []string{ev.ctx.JobStatus}
		default:
			for _, name := range ev.ctx.DirectDependencies {
				dep, ok := ev.ctx.Dependency(name)
				if !ok {
					// A direct dependency that has not reported is not terminal.
					results = append(results, "")
					continue
				}
				results = append(results, dep.Result)
			}
		}

		if anyMatch {
			for _, r := range results {
				if pred(r) {
					return Bool(true), nil
				}
			}
			return Bool(false), nil
		}
		for _, r := range results {
			if !pred(r) {
				return Bool(false), nil
			}
		}
		return Bool(true), nil
	}
}

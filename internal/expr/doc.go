// Package expr implements the expression language embedded in pipeline files.
//
// Three delimiter forms are recognised in text:
//
//	${{ expr }}   template expression, resolved before the graph is built
//	$[ expr ]     runtime expression, resolved immediately before a step runs
//	$(name)       macro, replaced with the value of a variable at runtime
//
// Conditions (a stage, job or step `condition`) are bare expressions without
// delimiters.
//
// The package is split the classic way: Lex turns the inside of one span into
// tokens, Parse turns tokens into an Expr tree, and Evaluate walks the tree
// against a Context. Values are dynamically typed (see Value) and follow the
// loose coercion rules of DevOps-style expressions: equality never fails on
// mismatched types, string comparison ignores case, and numeric comparison
// accepts numeric-looking strings. Reference resolution is strict: an unknown
// name, missing field, or out-of-range index is an UndefinedReference error.
package expr

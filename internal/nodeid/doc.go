/*
Package nodeid provides a structured, type-safe representation for node
identifiers within the execution graph, based on the canonical format `path`.

The format is a dot-separated sequence of segments. A stage node has a single
segment (`build`); a job instance has two, the stage and the job template,
where matrix instances carry their combination index (`build.compile[2]`).
Plain jobs carry no index (`build.lint`).

This package enforces the identifier schema and centralizes all
formatting and parsing logic.
*/
package nodeid

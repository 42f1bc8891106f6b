// Package taskstore loads task manifests written in HCL and resolves the
// task references used by `task:` steps.
//
// A manifest declares one or more tasks:
//
//	task "greet" {
//	  version     = "1"
//	  description = "Print a greeting"
//	  interpreter = "bash"
//	  script      = "echo \"hello $INPUT_WHO\""
//
//	  input "who" {
//	    default = "world"
//	  }
//	}
//
// A task runs either a script (optionally through an interpreter) or a
// command argv. Step inputs are exported to it as INPUT_<NAME> environment
// variables, with manifest defaults filling in what the step leaves out.
package taskstore

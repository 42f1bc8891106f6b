// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the pipeline run lifecycle: loading the
// pipeline file and task manifests, building the execution graph, running
// it while pumping events to the configured sinks, and serving run status
// over HTTP. It is decoupled from any specific entrypoint like a CLI.
package app

// Package events delivers execution progress to consumers.
//
// The executor publishes onto a Queue, which never blocks the publisher. A
// single pump goroutine drains the queue into a Sink, usually a Fanout of the
// console, TUI, CBOR log, socket.io and metrics sinks. A failing sink is
// logged and otherwise ignored so consumers cannot affect execution.
package events

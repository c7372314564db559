// Package sinks implements concrete progress consumers: Prometheus, the run
// repository, and structured logging. Each sink satisfies progress.Sink and is
// safe for repeated Consume/Close cycles.
package sinks

// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that crawl cycles use to report run lifecycle and upstream fetch
// outcomes. Events are batched on a background goroutine and fanned out to
// pluggable sinks such as Prometheus metrics or the run repository.
package progress

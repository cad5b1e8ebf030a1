// Package tracer configures OpenTelemetry tracing for clinvault.
//
// Spans are exported with the stdout exporter, either to stderr or to a
// size-rotated file, which keeps a single-process deployment free of a
// collector dependency. When tracing is disabled the global provider is a
// no-op and StartSpan costs next to nothing.
package tracer

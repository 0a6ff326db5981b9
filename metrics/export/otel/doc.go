// Package otel exports authshield metrics as OpenTelemetry observable
// instruments. A single callback reads a metrics snapshot per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate recorder state.
package otel

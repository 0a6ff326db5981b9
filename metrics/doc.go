// Package metrics holds the lock-free counters and the decision-latency
// histogram recorded by the protected endpoint and the authentication handler.
//
// Counters are cache-line padded atomics indexed by [ID]; [Metrics.Snapshot]
// copies them for exporters under metrics/export. A nil *Metrics is valid and
// records nothing.
//
// # What this package must NOT do
//
//   - Register anything with Prometheus or OpenTelemetry (exporters do that).
//   - Allocate on the recording path.
package metrics

// Package prometheus exposes authshield metrics as a client_golang
// [prometheus.Collector]. Counters are published as authshield_*_total and
// decision latency as authshield_protection_decision_seconds.
//
// # What this package must NOT do
//
//   - Register with the global registry. Callers pass a Registerer.
//   - Mutate recorder state.
package prometheus

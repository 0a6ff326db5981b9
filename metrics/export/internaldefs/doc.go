// Package internaldefs exposes stable metric names shared by exporter
// implementations, so the Prometheus and OTel exporters publish identical
// names and bucket boundaries.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs

// Package audit relays security-relevant events (protection outcomes,
// sign-in, sign-up, sign-out, gate redirects) to a sink without blocking the
// request path.
//
// # Components
//
//   - [Sink]: event consumer (slog, JSON writer, channel, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with type, outcome, request path, client IP and metadata.
//
// # What this package must NOT do
//
//   - Decide which events to emit.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit

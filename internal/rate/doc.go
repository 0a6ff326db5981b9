// Package rate implements a Redis-backed sliding-window limiter used by the
// rate-limit protection rule.
//
// # Window semantics
//
// Each key is a sorted set of admitted hits scored by their timestamp in
// milliseconds. One Lua script trims entries older than the window, counts
// the rest, and admits the hit only while the count is below the limit, so a
// check and its increment are atomic. Keys expire one window after the last
// admitted hit.
//
// # What this package must NOT do
//
//   - Decide which fingerprint to key on (callers pass the key).
//   - Be imported outside the authshield module.
package rate

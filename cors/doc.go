// Package cors resolves the allowed CORS origin for the authentication route
// and produces the fixed header set attached to every response.
//
// # Origin rules
//
//   - Development: an Origin starting with the localhost prefix is echoed back,
//     which lets a frontend on any local port make credentialed calls.
//     Anything else resolves to the fallback origin.
//   - Production: the configured frontend URL, or "*" when it is unset.
//
// # What this package must NOT do
//
//   - Read the process environment (mode and URLs are passed in).
//   - Reject requests. It only decides header values.
package cors

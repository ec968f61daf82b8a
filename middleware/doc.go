// Package middleware exposes HTTP adapters for a local web front served by a
// process that owns an authguard Store.
//
// # Adapters
//
//   - [Guard] applies a route table to every request.
//   - [RequireAuthenticated] rejects requests unless a session is active.
//   - [Transport] attaches the session token to outgoing requests.
//
// # Architecture boundaries
//
// This package translates route decisions into HTTP semantics. It does NOT
// decide anything itself: decisions come from route.Table.Evaluate and the
// session from the Store.
//
// # What this package must NOT do
//
//   - Parse or verify tokens.
//   - Mutate the session (no login, logout or refresh).
//   - Send a request with a token the Store no longer hands out.
package middleware

// Package authguard keeps the authentication state of a client process and
// publishes it to the rest of the application.
//
// A single [Store], built once through [Builder.Build], is the source of truth
// for who is signed in. It restores a persisted session at startup
// ([Store.Hydrate]), performs [Store.Login], [Store.Logout] and
// [Store.Refresh] against an external [Authenticator], and notifies
// subscribers of every transition. The route guard in package route reads
// the Store to decide whether a navigation may proceed.
//
// # Architecture boundaries
//
// authguard is the public surface. Session types and persistence backends
// live in package session, token decoding in package jwt, and audit dispatch
// under internal/. The Store never imports the route guard; the guard sees
// the Store only through a narrow read-and-subscribe interface.
//
// # What this package must NOT do
//
//   - Hold credentials after Login returns, or write them to persistence.
//   - Call listeners while holding its own locks.
//   - Retry Login or Refresh on its own; failures are reported to the caller.
//   - Issue a token for an outgoing request once the session left Authenticated.
//
// # Concurrency contract
//
// At most one Hydrate, Login or Refresh is in flight per Store. A second call
// returns [ErrConcurrentOperation] without changing state. Logout, Cancel and
// Close supersede the operation in flight; its result is discarded when it
// arrives.
package authguard

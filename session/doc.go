// Package session defines the client-side session snapshot, its status machine
// states, and the persistence backends used to survive process restarts.
//
// # Snapshot model
//
// A [Session] is an immutable value: the Store publishes a fresh copy on every
// transition and consumers never observe a partially updated record. The
// [Status] zero value is [StatusUnknown], the interim state a process is in
// before hydration resolves.
//
// # Persistence
//
// [Record] is the persisted form of an authenticated session. Every backend
// ([MemoryPersistence], [FilePersistence], [RedisPersistence]) stores the same
// versioned CBOR encoding produced by [Encode].
//
// # Architecture boundaries
//
// This package owns the data model and storage only. It does NOT talk to the
// authentication service, schedule expiry, or make navigation decisions; those
// belong to the root Store and the route package.
//
// # What this package must NOT do
//
//   - Import authguard, route, or middleware (no upward imports).
//   - Store credentials (passwords); only issued tokens are persisted.
//   - Mutate a [Session] after it has been handed to a caller.
package session

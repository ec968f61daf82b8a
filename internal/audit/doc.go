// Package audit relays session transition events to pluggable sinks.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record of one transition: statuses, user, reason, version.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. It does NOT decide which
// transitions are recorded; the Store subscribes the dispatcher to every one.
//
// # What this package must NOT do
//
//   - Import authguard or any sibling package.
//   - Record tokens or credentials in events.
package audit

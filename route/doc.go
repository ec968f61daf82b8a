// Package route decides whether a navigation may proceed given the current
// session.
//
// A [Table] holds the static route metadata and is built once at startup.
// [Table.Evaluate] is pure: the same path and session always yield the same
// [Decision]. [Guard] wraps a Table with the state a navigation layer needs:
// the displayed location, the path to resume after login, and re-evaluation
// on every session transition.
//
// Path patterns use gobwas/glob with '/' as the segment separator:
//   - "/projects/*" matches "/projects/42" but not "/projects/42/files"
//   - "/admin/**" matches every path below "/admin/"
//
// Exact paths always win over patterns; patterns are tried in declaration
// order.
package route

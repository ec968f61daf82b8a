// Package otel publishes authguard Store metrics through OpenTelemetry.
//
// [NewExporter] registers an Int64ObservableCounter per Store counter and,
// per histogram, a bucket gauge with an "le" attribute plus a count gauge. A
// single callback reads [authguard.Store.MetricsSnapshot] on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate Store state.
package otel

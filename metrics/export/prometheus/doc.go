// Package prometheus exposes authguard Store metrics to Prometheus.
//
// [Collector] implements prometheus.Collector over a Store snapshot. Register
// it with an existing registry, or use [Handler] for a standalone /metrics
// endpoint.
//
// Histograms report count and cumulative buckets. The sum is always zero
// because the Store does not track it.
package prometheus

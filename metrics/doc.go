// Package metrics exposes receiver counters and gauges as Prometheus
// collectors.
//
// Collectors are registered on a caller-supplied registry; passing a
// nil registry yields a no-op set so the pipeline can update metrics
// unconditionally.
package metrics

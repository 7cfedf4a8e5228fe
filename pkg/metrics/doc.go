// Package metrics exposes operator metrics in the Prometheus text format
// (text/plain; version=0.0.4).
//
// Supported metric types:
//   - Counter: monotonically increasing value, optionally labelled
//   - Gauge: value that can go up or down, optionally labelled
//   - Histogram: distribution of observations over fixed buckets
//
// All metrics are safe for concurrent use. The operator loop writes them and
// the HTTP handler reads them.
//
// # Operator Metrics
//
//   - reflector_reloads_total{result}: reload attempts by outcome (valid, invalid)
//   - reflector_child_exits_total{child}: unexpected child exits
//   - reflector_compile_duration_seconds: time spent compiling a topology
//   - reflector_ports_reserved: bridge ports held by the live configuration
//   - reflector_certificate_days_remaining{domain}: validity left per camouflage certificate
//   - reflector_child_resident_bytes{child}, reflector_child_cpu_percent{child}:
//     resource usage of the supervised processes, read at scrape time
//
// # Usage
//
//	reg := metrics.NewRegistry()
//	m := metrics.NewOperator(reg)
//	m.Reloads.With("valid").Inc()
//	http.Handle("/metrics", reg.Handler())
package metrics

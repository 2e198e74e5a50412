// Package metric provides Prometheus metrics for the mm client.
//
//   - prometheus.go: registry, client metrics and the /metrics handler
//   - collector.go: scrape-time collector for session validity
//
// Metrics are only served when `mm-cli presence --metrics-addr` is set.
// Every method on *Registry is nil-safe so components can run without
// metrics wired in.
package metric

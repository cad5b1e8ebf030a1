// Package metric exposes clinvault metrics in Prometheus format.
//
//   - prometheus.go: the registry, the /metrics handler and the storage
//     operation counters and latency histogram
//   - collector.go: a collector that samples cache, audit and backend state
//     from the storage engine at scrape time
package metric

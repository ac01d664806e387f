// Package metrics aggregates end-to-end probe attempts.
//
// Phase timings live in the telemetry engine; this package answers the
// coarser question of how long each full database operation took and why
// attempts failed:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//	collector.RecordAttempt(latency, err)
//	stats := collector.Stats()
//
// Latency percentiles come from an HDR histogram tracking 1µs to 60s with
// three significant figures. Failures are grouped by a readable error label,
// see [ErrorLabel]. The Collector is safe for concurrent use.
package metrics

// Package export projects the telemetry report and probe statistics as
// Prometheus metrics. Values are read at scrape time; nothing is cached.
package export

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/connprobe/internal/metrics"
	"github.com/torosent/connprobe/internal/telemetry"
)

const namespace = "connprobe"

// ReportSource produces the current telemetry report.
type ReportSource interface {
	Report() telemetry.Report
}

// StatsSource produces the current probe statistics.
type StatsSource interface {
	Stats() metrics.Stats
}

// Collector implements prometheus.Collector over the live sources.
type Collector struct {
	report ReportSource
	probe  StatsSource

	samples        *prometheus.Desc
	duration       *prometheus.Desc
	durationMax    *prometheus.Desc
	durationMean   *prometheus.Desc
	overThreshold  *prometheus.Desc
	window         *prometheus.Desc
	attempts       *prometheus.Desc
	attemptLatency *prometheus.Desc
	probeErrors    *prometheus.Desc
}

// NewCollector creates a Collector. probe may be nil.
func NewCollector(report ReportSource, probe StatsSource) *Collector {
	return &Collector{
		report: report,
		probe:  probe,
		samples: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "phase", "samples"),
			"Samples recorded per connection phase and outcome in the current collection window.",
			[]string{"category", "outcome"}, nil,
		),
		duration: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "phase", "duration_ms"),
			"Connection phase duration percentiles in milliseconds.",
			[]string{"category", "quantile"}, nil,
		),
		durationMax: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "phase", "duration_max_ms"),
			"Longest connection phase duration in milliseconds.",
			[]string{"category"}, nil,
		),
		durationMean: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "phase", "duration_mean_ms"),
			"Mean connection phase duration in milliseconds.",
			[]string{"category"}, nil,
		),
		overThreshold: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "connection_setup", "over_threshold"),
			"Connection setups slower than 500ms in the current collection window.",
			nil, nil,
		),
		window: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "collection", "window_minutes"),
			"Age of the current collection window in minutes.",
			nil, nil,
		),
		attempts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "probe", "attempts_total"),
			"Probe attempts since start by outcome.",
			[]string{"outcome"}, nil,
		),
		attemptLatency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "probe", "latency_ms"),
			"End-to-end probe latency percentiles in milliseconds.",
			[]string{"quantile"}, nil,
		),
		probeErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "probe", "errors_total"),
			"Failed probe attempts since start by error kind.",
			[]string{"error"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.samples
	ch <- c.duration
	ch <- c.durationMax
	ch <- c.durationMean
	ch <- c.overThreshold
	ch <- c.window
	if c.probe != nil {
		ch <- c.attempts
		ch <- c.attemptLatency
		ch <- c.probeErrors
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	r := c.report.Report()
	for _, cat := range telemetry.Categories {
		p := r.Phase(cat)
		name := cat.String()
		ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(p.Success), name, telemetry.Success.String())
		ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(p.Failure), name, telemetry.Failure.String())
		ch <- prometheus.MustNewConstMetric(c.duration, prometheus.GaugeValue, p.P50, name, "0.5")
		ch <- prometheus.MustNewConstMetric(c.duration, prometheus.GaugeValue, p.P95, name, "0.95")
		ch <- prometheus.MustNewConstMetric(c.duration, prometheus.GaugeValue, p.P99, name, "0.99")
		ch <- prometheus.MustNewConstMetric(c.durationMax, prometheus.GaugeValue, p.Max, name)
		ch <- prometheus.MustNewConstMetric(c.durationMean, prometheus.GaugeValue, p.Mean, name)
	}
	ch <- prometheus.MustNewConstMetric(c.overThreshold, prometheus.GaugeValue, float64(r.ConnectionSetup.Over500ms))
	ch <- prometheus.MustNewConstMetric(c.window, prometheus.GaugeValue, r.CollectionDurationMinutes)

	if c.probe == nil {
		return
	}
	s := c.probe.Stats()
	ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(s.Successes), "success")
	ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(s.Failures), "failure")
	ch <- prometheus.MustNewConstMetric(c.attemptLatency, prometheus.GaugeValue, s.P50LatencyMs, "0.5")
	ch <- prometheus.MustNewConstMetric(c.attemptLatency, prometheus.GaugeValue, s.P90LatencyMs, "0.9")
	ch <- prometheus.MustNewConstMetric(c.attemptLatency, prometheus.GaugeValue, s.P99LatencyMs, "0.99")
	for label, n := range s.Errors {
		ch <- prometheus.MustNewConstMetric(c.probeErrors, prometheus.CounterValue, float64(n), label)
	}
}

// NewRegistry returns a registry holding c plus the Go runtime and process
// collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{DisableCompression: true})
}

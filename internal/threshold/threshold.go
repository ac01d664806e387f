// Package threshold evaluates latency budgets such as
// "connection_setup:p95 < 500" against the final report.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/connprobe/internal/metrics"
	"github.com/torosent/connprobe/internal/telemetry"
)

// Threshold is one assertion on a report value.
type Threshold struct {
	Metric    string  `json:"metric" yaml:"metric"`       // e.g. "connection_setup", "probe_failed"
	Aggregate string  `json:"aggregate" yaml:"aggregate"` // e.g. "p95", "max", "rate"
	Operator  string  `json:"operator" yaml:"operator"`   // <, <=, >, >=, ==
	Value     float64 `json:"value" yaml:"value"`
	Raw       string  `json:"raw" yaml:"raw"`
}

// Result is the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

var pattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// phaseMetrics maps threshold metric names to report categories.
var phaseMetrics = map[string]telemetry.Category{
	"connection_setup": telemetry.ConnectionSetup,
	"dns_lookup":       telemetry.DNSLookup,
	"socket_connect":   telemetry.SocketConnect,
	"tls_handshake":    telemetry.TLSHandshake,
}

var aggregates = map[string][]string{
	"connection_setup": {"p50", "p95", "p99", "max", "mean", "count", "failure", "over500ms"},
	"dns_lookup":       {"p50", "p95", "p99", "max", "mean", "count", "failure"},
	"socket_connect":   {"p50", "p95", "p99", "max", "mean", "count", "failure"},
	"tls_handshake":    {"p50", "p95", "p99", "max", "mean", "count", "failure"},
	"probe_latency":    {"p50", "p90", "p99", "min", "max", "mean"},
	"probe_failed":     {"count", "rate"},
}

// Evaluator evaluates thresholds against a report.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate checks every threshold. Probe metrics read zero values when probe
// is nil.
func (e *Evaluator) Evaluate(report telemetry.Report, probe *metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	var stats metrics.Stats
	if probe != nil {
		stats = *probe
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, report, stats))
	}
	return results
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func evaluateOne(t Threshold, report telemetry.Report, stats metrics.Stats) Result {
	actual, err := extractValue(t, report, stats)
	if err != nil {
		return Result{Threshold: t, Message: fmt.Sprintf("error: %v", err)}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "PASS"
	if !pass {
		status = "FAIL"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses "metric:aggregate operator value". Latencies are in
// milliseconds, probe_failed:rate is a fraction between 0 and 1.
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'connection_setup:p95 < 500')", s)
	}
	metric, aggregate, operator := m[1], m[2], m[3]

	value, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", m[4], err)
	}

	allowed, ok := aggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: connection_setup, dns_lookup, socket_connect, tls_handshake, probe_latency, probe_failed)", metric)
	}
	if !contains(allowed, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(allowed, ", "))
	}
	if !contains([]string{"<", "<=", ">", ">=", "=="}, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses every entry and reports all malformed ones at once.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func extractValue(t Threshold, report telemetry.Report, stats metrics.Stats) (float64, error) {
	if c, ok := phaseMetrics[t.Metric]; ok {
		return phaseValue(t.Aggregate, c, report)
	}
	switch t.Metric {
	case "probe_latency":
		return probeLatency(t.Aggregate, stats)
	case "probe_failed":
		return probeFailures(t.Aggregate, stats)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func phaseValue(aggregate string, c telemetry.Category, report telemetry.Report) (float64, error) {
	p := report.Phase(c)
	switch aggregate {
	case "p50":
		return p.P50, nil
	case "p95":
		return p.P95, nil
	case "p99":
		return p.P99, nil
	case "max":
		return p.Max, nil
	case "mean":
		return p.Mean, nil
	case "count":
		return float64(p.Count), nil
	case "failure":
		return float64(p.Failure), nil
	case "over500ms":
		if c == telemetry.ConnectionSetup {
			return float64(report.ConnectionSetup.Over500ms), nil
		}
	}
	return 0, fmt.Errorf("unsupported aggregate %q for %s", aggregate, c)
}

func probeLatency(aggregate string, stats metrics.Stats) (float64, error) {
	switch aggregate {
	case "p50":
		return stats.P50LatencyMs, nil
	case "p90":
		return stats.P90LatencyMs, nil
	case "p99":
		return stats.P99LatencyMs, nil
	case "mean":
		return stats.MeanLatencyMs, nil
	case "min":
		return stats.MinLatencyMs, nil
	case "max":
		return stats.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for probe_latency", aggregate)
	}
}

func probeFailures(aggregate string, stats metrics.Stats) (float64, error) {
	switch aggregate {
	case "count":
		return float64(stats.Failures), nil
	case "rate":
		if stats.Total == 0 {
			return 0, nil
		}
		return float64(stats.Failures) / float64(stats.Total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for probe_failed (use 'count' or 'rate')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}

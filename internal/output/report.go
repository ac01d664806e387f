// Package output renders the telemetry report for people and machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/torosent/connprobe/internal/config"
	"github.com/torosent/connprobe/internal/metrics"
	"github.com/torosent/connprobe/internal/telemetry"
	"github.com/torosent/connprobe/internal/threshold"
)

// Summary is the final document written on shutdown. Probe is absent when no
// probe ran.
type Summary struct {
	Telemetry  telemetry.Report   `json:"telemetry" yaml:"telemetry"`
	Probe      *metrics.Stats     `json:"probe,omitempty" yaml:"probe,omitempty"`
	Thresholds []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Write renders s in the given format. An empty format means text.
func Write(w io.Writer, format config.ReportFormat, s Summary) error {
	switch format {
	case config.ReportFormatJSON:
		return PrintJSONReport(w, s)
	case config.ReportFormatYAML:
		return PrintYAMLReport(w, s)
	case config.ReportFormatText, "":
		PrintReport(w, s.Telemetry)
		if s.Probe != nil {
			PrintProbeStats(w, *s.Probe)
		}
		PrintThresholds(w, s.Thresholds)
		return nil
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// PrintReport outputs a human-readable summary of the phase timings.
func PrintReport(w io.Writer, r telemetry.Report) {
	fmt.Fprintln(w, "\n--- Connection Phase Timings ---")
	fmt.Fprintf(w, "Runtime:           %s\n", r.RuntimeVersion)
	fmt.Fprintf(w, "Window:            %.1f min\n", r.CollectionDurationMinutes)
	fmt.Fprintf(w, "Unit:              %s\n", r.Unit)
	fmt.Fprintf(w, "\n  %-16s %7s %9s %9s %9s %9s %9s %8s %8s\n",
		"phase", "count", "p50", "p95", "p99", "max", "mean", "success", "failure")
	for _, c := range telemetry.Categories {
		p := r.Phase(c)
		fmt.Fprintf(w, "  %-16s %7d %9.1f %9.1f %9.1f %9.1f %9.1f %8d %8d\n",
			c.String(), p.Count, p.P50, p.P95, p.P99, p.Max, p.Mean, p.Success, p.Failure)
	}
	fmt.Fprintf(w, "\nConnection setups over %.0fms: %d\n", telemetry.SetupThresholdMs, r.ConnectionSetup.Over500ms)
}

// PrintProbeStats outputs the end-to-end probe statistics.
func PrintProbeStats(w io.Writer, stats metrics.Stats) {
	fmt.Fprintln(w, "\n--- Probe Attempts ---")
	fmt.Fprintf(w, "Total:             %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Attempts/min:      %.2f\n", stats.AttemptsPerMinute)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
	if rows := metrics.SortErrorBuckets(stats.Errors); len(rows) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, row := range rows {
			fmt.Fprintf(w, "  %s: %d\n", row.Label, row.Count)
		}
	}
}

// PrintThresholds lists each threshold result. Nothing is printed for an
// empty list.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Thresholds ---")
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
	fmt.Fprintf(w, "%d of %d passed\n", len(results)-threshold.Failed(results), len(results))
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/connprobe/internal/config"
	"github.com/torosent/connprobe/internal/metrics"
	"github.com/torosent/connprobe/internal/telemetry"
	"github.com/torosent/connprobe/internal/threshold"
)

func sampleReport() telemetry.Report {
	e := telemetry.NewEngine("go1.25.0")
	for _, ms := range []int{10, 20, 30, 40, 700} {
		e.Record(telemetry.ConnectionSetup, time.Duration(ms)*time.Millisecond, telemetry.Success)
	}
	e.Record(telemetry.TLSHandshake, 25*time.Millisecond, telemetry.Failure)
	return e.Report()
}

func TestPrintReportBasic(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleReport())

	output := buf.String()
	for _, want := range []string{"Connection Phase Timings", "go1.25.0", "connectionSetup", "tlsHandshake", "over 500ms: 1"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output:\n%s", want, output)
		}
	}
}

func TestPrintProbeStatsIncludesErrors(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordAttempt(30*time.Millisecond, nil)
	c.RecordAttempt(40*time.Millisecond, errors.New("refused"))

	var buf bytes.Buffer
	PrintProbeStats(&buf, c.Stats())

	output := buf.String()
	if !strings.Contains(output, "Probe Attempts") {
		t.Errorf("Expected probe section in output")
	}
	if !strings.Contains(output, "Errors:") || !strings.Contains(output, metrics.ErrorLabel(errors.New("x"))+": 1") {
		t.Errorf("Expected error breakdown in output:\n%s", output)
	}
}

func TestWriteJSONKeepsReportShape(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, config.ReportFormatJSON, Summary{Telemetry: sampleReport()}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	report := parsed["telemetry"]
	if report["unit"] != "ms" {
		t.Errorf("unit = %v, want ms", report["unit"])
	}
	setup, ok := report["connectionSetup"].(map[string]interface{})
	if !ok || setup["over500ms"] != float64(1) {
		t.Errorf("connectionSetup = %v, want over500ms 1", report["connectionSetup"])
	}
	if _, ok := parsed["probe"]; ok {
		t.Errorf("probe should be omitted when absent")
	}
}

func TestWriteYAML(t *testing.T) {
	stats := metrics.NewCollector().Stats()
	var buf bytes.Buffer
	if err := Write(&buf, config.ReportFormatYAML, Summary{Telemetry: sampleReport(), Probe: &stats}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var parsed struct {
		Telemetry struct {
			Unit            string `yaml:"unit"`
			ConnectionSetup struct {
				Count     int `yaml:"count"`
				Over500ms int `yaml:"over500ms"`
			} `yaml:"connectionSetup"`
		} `yaml:"telemetry"`
		Probe map[string]interface{} `yaml:"probe"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, buf.String())
	}
	if parsed.Telemetry.Unit != "ms" || parsed.Telemetry.ConnectionSetup.Count != 5 || parsed.Telemetry.ConnectionSetup.Over500ms != 1 {
		t.Errorf("unexpected telemetry: %+v", parsed.Telemetry)
	}
	if parsed.Probe == nil {
		t.Errorf("expected probe section")
	}
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, "xml", Summary{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWriteTextIncludesThresholds(t *testing.T) {
	ths, err := threshold.ParseMultiple([]string{"connection_setup:max < 1000", "connection_setup:over500ms == 0"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	report := sampleReport()
	s := Summary{Telemetry: report, Thresholds: threshold.NewEvaluator(ths).Evaluate(report, nil)}

	var buf bytes.Buffer
	if err := Write(&buf, config.ReportFormatText, s); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"--- Thresholds ---", "PASS connection_setup:max < 1000", "FAIL connection_setup:over500ms == 0", "1 of 2 passed"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestPrintThresholdsEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintThresholds(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("PrintThresholds(nil) wrote %q", buf.String())
	}
}

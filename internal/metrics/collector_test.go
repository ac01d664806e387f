package metrics_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/torosent/connprobe/internal/metrics"
)

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	// Record deterministic latencies.
	c.RecordAttempt(10*time.Millisecond, nil)
	c.RecordAttempt(20*time.Millisecond, nil)
	c.RecordAttempt(30*time.Millisecond, nil)
	c.RecordAttempt(40*time.Millisecond, nil)
	c.RecordAttempt(50*time.Millisecond, nil)

	stats := c.Stats()

	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.Successes != 5 {
		t.Errorf("expected successes 5, got %d", stats.Successes)
	}
	if stats.Failures != 0 {
		t.Errorf("expected failures 0, got %d", stats.Failures)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
	if stats.LastAttempt == nil {
		t.Errorf("expected last attempt to be set")
	}
}

func TestPercentilesCalculations(t *testing.T) {
	c := metrics.NewCollector()

	// 100 samples: 1ms, 2ms, ..., 100ms.
	for i := 1; i <= 100; i++ {
		c.RecordAttempt(time.Duration(i)*time.Millisecond, nil)
	}

	stats := c.Stats()

	if stats.P50Latency < 49*time.Millisecond || stats.P50Latency > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", stats.P50Latency)
	}
	if stats.P90Latency < 89*time.Millisecond || stats.P90Latency > 91*time.Millisecond {
		t.Errorf("expected P90 ~90ms, got %s", stats.P90Latency)
	}
	if stats.P99Latency < 98*time.Millisecond || stats.P99Latency > 100*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", stats.P99Latency)
	}
}

func TestFailuresAndConsecutiveCount(t *testing.T) {
	c := metrics.NewCollector()
	boom := errors.New("boom")

	c.RecordAttempt(5*time.Millisecond, boom)
	c.RecordAttempt(5*time.Millisecond, boom)
	if got := c.Stats().ConsecutiveFailures; got != 2 {
		t.Fatalf("expected 2 consecutive failures, got %d", got)
	}

	c.RecordAttempt(5*time.Millisecond, nil)
	c.RecordAttempt(5*time.Millisecond, boom)

	stats := c.Stats()
	if stats.Failures != 3 || stats.Successes != 1 {
		t.Errorf("expected 3 failures/1 success, got %d/%d", stats.Failures, stats.Successes)
	}
	if stats.ConsecutiveFailures != 1 {
		t.Errorf("expected consecutive failures reset to 1, got %d", stats.ConsecutiveFailures)
	}
	if stats.LastError != "boom" {
		t.Errorf("expected last error boom, got %q", stats.LastError)
	}
	if stats.Errors[metrics.ErrorLabel(boom)] != 3 {
		t.Errorf("expected 3 errors under %q, got %v", metrics.ErrorLabel(boom), stats.Errors)
	}
}

func TestJSONReportSchema(t *testing.T) {
	c := metrics.NewCollector()
	c.Start()

	c.RecordAttempt(15*time.Millisecond, nil)
	c.RecordAttempt(25*time.Millisecond, errors.New("refused"))

	data, err := json.Marshal(c.Stats())
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	requiredFields := []string{"total", "successes", "failures", "consecutive_failures", "min_latency_ms", "max_latency_ms", "mean_latency_ms", "p50_latency_ms", "p90_latency_ms", "p99_latency_ms", "duration_ms", "attempts_per_minute", "errors", "last_error", "last_attempt"}
	for _, field := range requiredFields {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
}

func TestEmptyStatsOmitOptionalFields(t *testing.T) {
	data, err := json.Marshal(metrics.NewCollector().Stats())
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	for _, field := range []string{"errors", "last_error", "last_attempt"} {
		if _, ok := parsed[field]; ok {
			t.Errorf("field %q should be omitted before any attempt", field)
		}
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := metrics.NewCollector()

	var wg sync.WaitGroup
	workers := 10
	recordsPerWorker := 100

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerWorker; j++ {
				c.RecordAttempt(time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	stats := c.Stats()
	expected := workers * recordsPerWorker
	if stats.Total != int64(expected) {
		t.Errorf("expected total %d, got %d", expected, stats.Total)
	}
}

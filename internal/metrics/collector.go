package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector records per-attempt metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	consecutive  int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByType map[string]int64
	lastError    string
	lastAttempt  time.Time
	start        time.Time
	now          func() time.Time
}

// Stats represents aggregated probe metrics.
type Stats struct {
	Total               int64         `json:"total"`
	Successes           int64         `json:"successes"`
	Failures            int64         `json:"failures"`
	ConsecutiveFailures int64         `json:"consecutive_failures"`
	MinLatency          time.Duration `json:"-"`
	MaxLatency          time.Duration `json:"-"`
	MeanLatency         time.Duration `json:"-"`
	P50Latency          time.Duration `json:"-"`
	P90Latency          time.Duration `json:"-"`
	P99Latency          time.Duration `json:"-"`
	Duration            time.Duration `json:"-"`
	AttemptsPerMinute   float64       `json:"attempts_per_minute"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64          `json:"min_latency_ms"`
	MaxLatencyMs  float64          `json:"max_latency_ms"`
	MeanLatencyMs float64          `json:"mean_latency_ms"`
	P50LatencyMs  float64          `json:"p50_latency_ms"`
	P90LatencyMs  float64          `json:"p90_latency_ms"`
	P99LatencyMs  float64          `json:"p99_latency_ms"`
	DurationMs    float64          `json:"duration_ms"`
	Errors        map[string]int64 `json:"errors,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
	LastAttempt   *time.Time       `json:"last_attempt,omitempty"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	c := &Collector{
		hist:         h,
		errorsByType: make(map[string]int64),
		now:          time.Now,
	}
	c.start = c.now()
	return c
}

// Start marks the beginning of the measurement window used for the attempt
// rate. It does not clear recorded attempts.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = c.now()
	c.mu.Unlock()
}

// RecordAttempt records a single probe attempt's latency and error state.
func (c *Collector) RecordAttempt(latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}
	c.lastAttempt = c.now()

	if err == nil {
		c.successes++
		c.consecutive = 0
		return
	}
	c.failures++
	c.consecutive++
	c.errorsByType[ErrorLabel(err)]++
	c.lastError = err.Error()
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:               total,
		Successes:           c.successes,
		Failures:            c.failures,
		ConsecutiveFailures: c.consecutive,
		MinLatency:          c.minLatency,
		MaxLatency:          c.maxLatency,
		LastError:           c.lastError,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
		last := c.lastAttempt
		stats.LastAttempt = &last
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	elapsed := c.now().Sub(c.start)
	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.AttemptsPerMinute = float64(total) / elapsed.Minutes()
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int64, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = v
		}
	}

	return stats
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/connprobe/internal/metrics"
	"github.com/torosent/connprobe/internal/telemetry"
)

// ReportSource produces the current telemetry report.
type ReportSource interface {
	Report() telemetry.Report
}

// StatsSource produces the current probe statistics.
type StatsSource interface {
	Stats() metrics.Stats
}

// ProgressReporter displays a one-line status at a fixed interval.
type ProgressReporter struct {
	report   ReportSource
	probe    StatsSource
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. probe may be nil.
func NewProgressReporter(report ReportSource, probe StatsSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		report:   report,
		probe:    probe,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	r := p.report.Report()
	setup := r.ConnectionSetup
	line := fmt.Sprintf("Setups: %d (%d failed) | P95: %.1fms | P99: %.1fms | Max: %.1fms | >%.0fms: %d",
		setup.Count, setup.Failure, setup.P95, setup.P99, setup.Max, telemetry.SetupThresholdMs, setup.Over500ms)
	if p.probe != nil {
		s := p.probe.Stats()
		line += fmt.Sprintf(" | Probes: %d/%d ok", s.Successes, s.Total)
	}
	return line
}

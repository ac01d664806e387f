package telemetry

import (
	"sort"
	"sync"
	"time"
)

// SetupThresholdMs is the first-attempt control-plane timeout of the
// monitored client. Connection setups slower than this are counted.
const SetupThresholdMs = 500.0

// Engine owns one sample store per category and the collection window.
type Engine struct {
	// mu orders Reset against Record and Report. Record and Report share
	// the read side; the stores carry their own locks.
	mu             sync.RWMutex
	stores         [len(Categories)]*store
	start          time.Time
	runtimeVersion string
	now            func() time.Time
}

// NewEngine creates an engine whose collection window starts now.
// runtimeVersion is reported verbatim.
func NewEngine(runtimeVersion string) *Engine {
	e := &Engine{
		runtimeVersion: runtimeVersion,
		now:            time.Now,
	}
	for i := range e.stores {
		e.stores[i] = newStore()
	}
	e.start = e.now()
	return e
}

// Record appends one sample to the store of c. Unknown categories are ignored.
func (e *Engine) Record(c Category, d time.Duration, outcome Outcome) {
	if c < 0 || int(c) >= len(e.stores) {
		return
	}
	ms := float64(d) / float64(time.Millisecond)
	e.mu.RLock()
	e.stores[c].record(ms, outcome)
	e.mu.RUnlock()
}

// Snapshot returns a copy of the samples recorded for c.
func (e *Engine) Snapshot(c Category) StoreSnapshot {
	if c < 0 || int(c) >= len(e.stores) {
		return StoreSnapshot{}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stores[c].snapshot()
}

// Reset clears every store and restarts the collection window.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.stores {
		s.clear()
	}
	e.start = e.now()
}

// StartTime returns the start of the current collection window.
func (e *Engine) StartTime() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.start
}

func (e *Engine) markStart() {
	e.mu.Lock()
	e.start = e.now()
	e.mu.Unlock()
}

// Report builds a point-in-time report across all categories.
func (e *Engine) Report() Report {
	var snaps [len(Categories)]StoreSnapshot
	e.mu.RLock()
	for i, s := range e.stores {
		snaps[i] = s.snapshot()
	}
	start := e.start
	e.mu.RUnlock()

	report := Report{
		RuntimeVersion:            e.runtimeVersion,
		CollectionDurationMinutes: round1(e.now().Sub(start).Minutes()),
		Unit:                      "ms",
	}
	for _, c := range Categories {
		snap := snaps[c]
		sort.Float64s(snap.Durations)
		stats := phaseStats(snap)
		switch c {
		case ConnectionSetup:
			report.ConnectionSetup = ConnectionSetupStats{
				PhaseStats: stats,
				Over500ms:  countAbove(snap.Durations, SetupThresholdMs),
			}
		case DNSLookup:
			report.DNSLookup = stats
		case SocketConnect:
			report.SocketConnect = stats
		case TLSHandshake:
			report.TLSHandshake = stats
		}
	}
	return report
}

func phaseStats(snap StoreSnapshot) PhaseStats {
	return PhaseStats{
		Count:   len(snap.Durations),
		P50:     Percentile(snap.Durations, 50),
		P95:     Percentile(snap.Durations, 95),
		P99:     Percentile(snap.Durations, 99),
		Max:     Max(snap.Durations),
		Mean:    Mean(snap.Durations),
		Success: snap.Successes,
		Failure: snap.Failures,
	}
}

// countAbove counts values of sorted strictly greater than limit.
func countAbove(sorted []float64, limit float64) int {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] > limit })
	return len(sorted) - i
}

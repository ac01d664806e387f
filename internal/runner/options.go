package runner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = 5 * time.Second

// Prober abstracts executing a single database operation.
// Implementations should return an error for failed attempts.
type Prober interface {
	Name() string
	Probe(ctx context.Context) error
}

// Recorder receives the latency and outcome of every finished attempt.
type Recorder interface {
	RecordAttempt(latency time.Duration, err error)
}

// Observer is notified of every finished attempt's outcome.
type Observer interface {
	Observe(err error)
}

// Options configure the Runner.
type Options struct {
	Interval       time.Duration                              // time between attempt starts
	Timeout        time.Duration                              // per-attempt timeout (0 means none)
	TotalAttempts  int                                        // stop after this many attempts (0 means until ctx ends)
	Prober         Prober                                     // operation executor (required)
	Recorder       Recorder                                   // optional
	Observer       Observer                                   // optional
	Logger         *zap.Logger                                // optional; defaults to a no-op logger
	LimiterFactory func(interval time.Duration) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout < 0 {
		o.Timeout = 0
	}
	if o.TotalAttempts < 0 {
		o.TotalAttempts = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(interval time.Duration) *rate.Limiter {
			return rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

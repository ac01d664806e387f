package runner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/connprobe/internal/logging"
)

// Result captures execution summary.
type Result struct {
	Total    int64
	Errors   int64
	Duration time.Duration
}

// Runner repeats a probe at a fixed cadence.
type Runner struct {
	opt   Options
	pacer *rate.Limiter
	total atomic.Int64
	errs  atomic.Int64
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{
		opt:   opt,
		pacer: opt.LimiterFactory(opt.Interval),
	}
}

// Run blocks until ctx is done or TotalAttempts attempts have finished.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	log := r.opt.Logger
	name := ""
	if r.opt.Prober != nil {
		name = r.opt.Prober.Name()
	}
	log.Info("probe loop started",
		zap.String("probe", name),
		zap.Duration("interval", r.opt.Interval),
		zap.Duration("timeout", r.opt.Timeout),
	)

	for {
		if r.opt.TotalAttempts > 0 && r.total.Load() >= int64(r.opt.TotalAttempts) {
			break
		}
		if err := r.wait(ctx); err != nil {
			break
		}
		if r.opt.Prober != nil {
			r.attempt(ctx)
		}
	}

	res := Result{
		Total:    r.total.Load(),
		Errors:   r.errs.Load(),
		Duration: time.Since(start),
	}
	log.Info("probe loop stopped",
		zap.Int64("attempts", res.Total),
		zap.Int64("failures", res.Errors),
		zap.Duration("elapsed", res.Duration),
	)
	return res
}

// wait blocks until the next tick. Without a pacer it only reports shutdown.
func (r *Runner) wait(ctx context.Context) error {
	if r.pacer == nil {
		return ctx.Err()
	}
	return r.pacer.Wait(ctx)
}

func (r *Runner) attempt(ctx context.Context) {
	id := ulid.Make().String()
	attemptCtx := ctx
	if r.opt.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.opt.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := r.opt.Prober.Probe(attemptCtx)
	latency := time.Since(start)

	// An attempt cut short by shutdown says nothing about the target.
	if err != nil && ctx.Err() != nil {
		r.opt.Logger.Debug("probe attempt interrupted", zap.String("attempt", id))
		return
	}

	r.total.Add(1)
	if r.opt.Recorder != nil {
		r.opt.Recorder.RecordAttempt(latency, err)
	}
	if r.opt.Observer != nil {
		r.opt.Observer.Observe(err)
	}

	if err != nil {
		r.errs.Add(1)
		r.opt.Logger.Warn("probe attempt failed",
			zap.String("attempt", id),
			zap.String("probe", r.opt.Prober.Name()),
			zap.Duration("latency", latency),
			zap.Error(err),
			logging.ErrorType(err),
		)
		return
	}
	r.opt.Logger.Debug("probe attempt succeeded",
		zap.String("attempt", id),
		zap.String("probe", r.opt.Prober.Name()),
		zap.Duration("latency", latency),
	)
}

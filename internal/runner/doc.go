// Package runner drives the measured database operation on a fixed cadence.
//
// A [Runner] invokes its [Prober] once per interval, paced by a token bucket
// with a burst of one, so attempts never overlap and a slow attempt delays
// the next one instead of piling up:
//
//	r := runner.New(runner.Options{
//		Interval: 5 * time.Second,
//		Timeout:  10 * time.Second,
//		Prober:   p,
//		Recorder: collector,
//		Observer: checker,
//		Logger:   logger,
//	})
//	result := r.Run(ctx)
//
// Each attempt gets its own timeout and a ULID that ties its log lines
// together. Failed attempts are data, not errors: they are recorded, logged
// and the loop carries on until ctx is cancelled or TotalAttempts is reached.
package runner

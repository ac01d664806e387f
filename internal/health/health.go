// Package health derives service liveness from the outcome of recent probe
// attempts.
package health

import (
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// DefaultMaxFailures is the number of consecutive failed attempts after which
// the service reports unhealthy.
const DefaultMaxFailures = 3

// Result is the point-in-time health verdict.
type Result struct {
	Status              string     `json:"status"`
	Reason              string     `json:"reason,omitempty"`
	LastAttempt         *time.Time `json:"lastAttempt,omitempty"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
}

// Healthy reports whether the verdict is healthy.
func (r Result) Healthy() bool { return r.Status == StatusHealthy }

// Checker tracks probe outcomes. A checker is healthy while attempts keep
// arriving within staleAfter and fewer than maxFailures have failed in a row.
type Checker struct {
	mu          sync.Mutex
	staleAfter  time.Duration
	maxFailures int
	started     time.Time
	lastAttempt time.Time
	lastSuccess time.Time
	lastErr     string
	consecutive int
	now         func() time.Time
}

// NewChecker creates a Checker. staleAfter <= 0 disables the recency check;
// maxFailures <= 0 uses DefaultMaxFailures.
func NewChecker(staleAfter time.Duration, maxFailures int) *Checker {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	c := &Checker{staleAfter: staleAfter, maxFailures: maxFailures, now: time.Now}
	c.started = c.now()
	return c
}

// Observe records the outcome of one probe attempt.
func (c *Checker) Observe(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.lastAttempt = now
	if err != nil {
		c.consecutive++
		c.lastErr = err.Error()
		return
	}
	c.consecutive = 0
	c.lastErr = ""
	c.lastSuccess = now
}

// Check returns the current verdict.
func (c *Checker) Check() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{Status: StatusHealthy, ConsecutiveFailures: c.consecutive}
	if !c.lastAttempt.IsZero() {
		t := c.lastAttempt
		res.LastAttempt = &t
	}
	if !c.lastSuccess.IsZero() {
		t := c.lastSuccess
		res.LastSuccess = &t
	}

	now := c.now()
	switch {
	case c.consecutive >= c.maxFailures:
		res.Status = StatusUnhealthy
		res.Reason = "probe failing: " + c.lastErr
	case c.staleAfter > 0 && c.lastAttempt.IsZero() && now.Sub(c.started) > c.staleAfter:
		res.Status = StatusUnhealthy
		res.Reason = "no probe attempt since start"
	case c.staleAfter > 0 && !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) > c.staleAfter:
		res.Status = StatusUnhealthy
		res.Reason = "probe loop stalled"
	}
	return res
}

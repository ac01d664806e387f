package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestChecker(stale time.Duration, maxFailures int) (*Checker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewChecker(stale, maxFailures)
	c.now = clock.now
	c.started = clock.t
	return c, clock
}

func TestCheckerHealthyDuringStartupGrace(t *testing.T) {
	c, clock := newTestChecker(10*time.Second, 0)
	clock.advance(5 * time.Second)

	res := c.Check()
	assert.True(t, res.Healthy())
	assert.Nil(t, res.LastAttempt)

	clock.advance(6 * time.Second)
	res = c.Check()
	assert.False(t, res.Healthy())
	assert.Equal(t, "no probe attempt since start", res.Reason)
}

func TestCheckerConsecutiveFailures(t *testing.T) {
	c, _ := newTestChecker(0, 2)

	c.Observe(errors.New("i/o timeout"))
	assert.True(t, c.Check().Healthy(), "one failure is tolerated")

	c.Observe(errors.New("i/o timeout"))
	res := c.Check()
	require.False(t, res.Healthy())
	assert.Equal(t, 2, res.ConsecutiveFailures)
	assert.Contains(t, res.Reason, "i/o timeout")
	assert.Nil(t, res.LastSuccess)

	c.Observe(nil)
	res = c.Check()
	assert.True(t, res.Healthy())
	assert.Zero(t, res.ConsecutiveFailures)
	assert.NotNil(t, res.LastSuccess)
}

func TestCheckerStalledLoop(t *testing.T) {
	c, clock := newTestChecker(3*time.Second, 0)
	c.Observe(nil)

	clock.advance(2 * time.Second)
	assert.True(t, c.Check().Healthy())

	clock.advance(2 * time.Second)
	res := c.Check()
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "probe loop stalled", res.Reason)
}

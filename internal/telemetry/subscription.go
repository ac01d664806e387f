package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultDrainTimeout bounds how long Stop waits for in-flight callbacks.
const DefaultDrainTimeout = 2 * time.Second

// ErrAlreadyStarted is returned by Start on a subscription that was started before.
var ErrAlreadyStarted = errors.New("subscription already started")

// Registrar is the span processor registry of a tracer provider.
// *sdktrace.TracerProvider implements it.
type Registrar interface {
	RegisterSpanProcessor(sp sdktrace.SpanProcessor)
	UnregisterSpanProcessor(sp sdktrace.SpanProcessor)
}

// Subscription bridges completion events into an Engine. It is an
// sdktrace.SpanProcessor: spans ended on a tracer named after a known
// source identifier become samples, everything else is dropped.
type Subscription struct {
	engine   *Engine
	provider Registrar
	drain    time.Duration

	started  atomic.Bool
	active   atomic.Bool
	inflight atomic.Int64
}

var _ sdktrace.SpanProcessor = (*Subscription)(nil)

// NewSubscription creates a subscription feeding engine. provider may be nil
// when events are delivered through OnEvent only. A non-positive drain
// selects DefaultDrainTimeout.
func NewSubscription(engine *Engine, provider Registrar, drain time.Duration) *Subscription {
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}
	return &Subscription{engine: engine, provider: provider, drain: drain}
}

// Start begins listening and marks the start of the collection window.
func (s *Subscription) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	s.engine.markStart()
	s.active.Store(true)
	if s.provider != nil {
		s.provider.RegisterSpanProcessor(s)
	}
	return nil
}

// Stop stops listening. Recorded samples are kept. It waits for callbacks
// already in progress until they finish, the drain period elapses or ctx
// is done, whichever comes first.
func (s *Subscription) Stop(ctx context.Context) error {
	if !s.active.CompareAndSwap(true, false) {
		return nil
	}
	if s.provider != nil {
		s.provider.UnregisterSpanProcessor(s)
	}
	return s.wait(ctx)
}

// OnEvent records one completed operation. Events from unknown sources and
// events arriving while the subscription is not listening are discarded.
func (s *Subscription) OnEvent(sourceID string, d time.Duration, status codes.Code) {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)
	if !s.active.Load() {
		return
	}
	category, ok := Lookup(sourceID)
	if !ok {
		return
	}
	if d < 0 {
		d = 0
	}
	outcome := Success
	if status == codes.Error {
		outcome = Failure
	}
	s.engine.Record(category, d, outcome)
}

// OnStart implements sdktrace.SpanProcessor.
func (s *Subscription) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd implements sdktrace.SpanProcessor.
func (s *Subscription) OnEnd(span sdktrace.ReadOnlySpan) {
	s.OnEvent(span.InstrumentationScope().Name, span.EndTime().Sub(span.StartTime()), span.Status().Code)
}

// Shutdown implements sdktrace.SpanProcessor. The provider calls it when the
// subscription is unregistered or the provider shuts down.
func (s *Subscription) Shutdown(ctx context.Context) error {
	s.active.Store(false)
	return s.wait(ctx)
}

// ForceFlush implements sdktrace.SpanProcessor. Samples are recorded
// synchronously, so there is nothing to flush.
func (s *Subscription) ForceFlush(context.Context) error { return nil }

func (s *Subscription) wait(ctx context.Context) error {
	if s.inflight.Load() == 0 {
		return nil
	}
	timer := time.NewTimer(s.drain)
	defer timer.Stop()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for s.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

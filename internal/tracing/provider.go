// Package tracing owns the in-process OpenTelemetry provider that carries
// connection phase completion events. Spans never leave the process; the
// only consumers are span processors registered on the provider.
package tracing

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/connprobe/internal/telemetry"
)

// Tracers holds one tracer per phase source.
type Tracers struct {
	Connection trace.Tracer
	DNS        trace.Tracer
	Socket     trace.Tracer
	TLS        trace.Tracer
}

// NoopTracers returns tracers that record nothing.
func NoopTracers() Tracers {
	tp := noop.NewTracerProvider()
	return Tracers{
		Connection: tp.Tracer(telemetry.SourceConnection),
		DNS:        tp.Tracer(telemetry.SourceDNS),
		Socket:     tp.Tracer(telemetry.SourceSocket),
		TLS:        tp.Tracer(telemetry.SourceTLS),
	}
}

// Provider wraps the local TracerProvider.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// New creates a provider that samples every span and exports none.
func New() *Provider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return &Provider{tp: tp}
}

// TracerProvider returns the SDK provider. Span processors register on it.
func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.tp
}

// Tracers returns the phase tracers. A nil provider yields no-op tracers.
func (p *Provider) Tracers() Tracers {
	if p == nil || p.tp == nil {
		return NoopTracers()
	}
	return Tracers{
		Connection: p.tp.Tracer(telemetry.SourceConnection),
		DNS:        p.tp.Tracer(telemetry.SourceDNS),
		Socket:     p.tp.Tracer(telemetry.SourceSocket),
		TLS:        p.tp.Tracer(telemetry.SourceTLS),
	}
}

// Shutdown shuts down the provider and every registered processor.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

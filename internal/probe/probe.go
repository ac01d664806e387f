// Package probe runs one database operation per call through the
// instrumented dialer, so every new connection reports its phase timings.
package probe

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/torosent/connprobe/internal/config"
	"github.com/torosent/connprobe/internal/tracing"
)

// Prober performs a single database operation.
type Prober interface {
	// Name identifies the probe kind in logs and stats.
	Name() string
	Probe(ctx context.Context) error
	Close() error
}

// StatusError is returned when an http probe receives an error status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ExpectationError is returned when a response lacks the expected JSON path.
type ExpectationError struct {
	Path string
}

func (e *ExpectationError) Error() string {
	return fmt.Sprintf("response has no value at %q", e.Path)
}

// NotServingError is returned when a gRPC health check reports anything
// other than SERVING.
type NotServingError struct {
	Service string
	Status  string
}

func (e *NotServingError) Error() string {
	if e.Service == "" {
		return fmt.Sprintf("server health is %s", e.Status)
	}
	return fmt.Sprintf("service %q health is %s", e.Service, e.Status)
}

// New builds the prober selected by cfg.Kind.
func New(cfg config.ProbeConfig, tracers tracing.Tracers) (Prober, error) {
	switch cfg.Kind {
	case config.ProbeKindHTTP, "":
		return NewHTTP(cfg, tracers)
	case config.ProbeKindRedis:
		return NewRedis(cfg, tracers), nil
	case config.ProbeKindGRPC:
		return NewGRPC(cfg, tracers), nil
	default:
		return nil, fmt.Errorf("unsupported probe kind %q", cfg.Kind)
	}
}

func tlsConfig(cfg config.ProbeConfig, nextProtos ...string) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.Insecure, //nolint:gosec // opt-in via insecure_skip_verify
		NextProtos:         nextProtos,
	}
}

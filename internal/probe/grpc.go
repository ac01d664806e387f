package probe

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/torosent/connprobe/internal/config"
	"github.com/torosent/connprobe/internal/dialer"
	"github.com/torosent/connprobe/internal/tracing"
)

// GRPC probes a gRPC server through the standard health service.
type GRPC struct {
	target  string
	service string
	fresh   bool
	opts    []grpc.DialOption

	mu     sync.Mutex
	shared *grpc.ClientConn
}

// NewGRPC creates a grpc prober. The instrumented dialer owns the TLS
// handshake, so gRPC itself runs with insecure transport credentials over
// the already secured connection.
func NewGRPC(cfg config.ProbeConfig, tracers tracing.Tracers) *GRPC {
	d := dialer.New(tracers, tlsConfig(cfg, "h2"))
	dial := func(ctx context.Context, addr string) (net.Conn, error) {
		if cfg.TLS {
			return d.DialTLSContext(ctx, "tcp", addr)
		}
		return d.DialContext(ctx, "tcp", addr)
	}
	return &GRPC{
		// passthrough keeps name resolution inside the dialer.
		target:  "passthrough:///" + cfg.Target,
		service: cfg.GRPCService,
		fresh:   cfg.FreshConnections,
		opts: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithContextDialer(dial),
			grpc.WithDisableRetry(),
		},
	}
}

func (p *GRPC) Name() string { return string(config.ProbeKindGRPC) }

func (p *GRPC) Probe(ctx context.Context) error {
	conn, err := p.conn()
	if err != nil {
		return err
	}
	if p.fresh {
		defer conn.Close()
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return fmt.Errorf("grpc health check: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return &NotServingError{Service: p.service, Status: resp.GetStatus().String()}
	}
	return nil
}

func (p *GRPC) conn() (*grpc.ClientConn, error) {
	if p.fresh {
		return grpc.NewClient(p.target, p.opts...)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shared == nil {
		conn, err := grpc.NewClient(p.target, p.opts...)
		if err != nil {
			return nil, err
		}
		p.shared = conn
	}
	return p.shared, nil
}

func (p *GRPC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shared == nil {
		return nil
	}
	err := p.shared.Close()
	p.shared = nil
	return err
}

// Package dialer establishes connections one phase at a time so every phase
// ends its own span: name resolution, socket connect and TLS handshake, all
// nested under a connection setup span.
package dialer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/torosent/connprobe/internal/tracing"
)

// Dialer dials TCP connections and reports each phase on Tracers.
type Dialer struct {
	Tracers tracing.Tracers
	// Resolver defaults to net.DefaultResolver.
	Resolver *net.Resolver
	// Timeout bounds each socket connect attempt. Zero means no limit
	// beyond the context.
	Timeout   time.Duration
	KeepAlive time.Duration
	// TLSConfig is used by DialTLSContext. ServerName defaults to the
	// dialed host.
	TLSConfig *tls.Config
}

// New returns a Dialer with the same socket defaults as the HTTP client.
func New(tracers tracing.Tracers, tlsConfig *tls.Config) *Dialer {
	return &Dialer{
		Tracers:   tracers,
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		TLSConfig: tlsConfig,
	}
}

// DialContext dials a plain connection.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return d.dial(ctx, network, addr, nil)
}

// DialTLSContext dials and completes a TLS handshake using d.TLSConfig.
func (d *Dialer) DialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	cfg := d.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return d.dial(ctx, network, addr, cfg)
}

func (d *Dialer) dial(ctx context.Context, network, addr string, tlsConfig *tls.Config) (conn net.Conn, err error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ctx, setup := tracing.StartPhase(ctx, d.Tracers.Connection, "connection setup",
		attribute.String("server.address", host),
		attribute.String("server.port", port),
		attribute.Bool("tls", tlsConfig != nil),
	)
	defer func() { setup.End(err) }()

	ips, err := d.lookup(ctx, network, host)
	if err != nil {
		return nil, err
	}

	conn, err = d.connect(ctx, network, ips, port)
	if err != nil {
		return nil, err
	}

	if tlsConfig != nil {
		conn, err = d.handshake(ctx, conn, host, tlsConfig)
		if err != nil {
			return nil, err
		}
	}
	return conn, nil
}

func (d *Dialer) lookup(ctx context.Context, network, host string) (ips []string, err error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	ctx, phase := tracing.StartPhase(ctx, d.Tracers.DNS, "dns lookup",
		attribute.String("dns.question.name", host),
	)
	defer func() {
		phase.End(err, attribute.Int("dns.answers", len(ips)))
	}()

	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", host, err)
	}
	for _, a := range addrs {
		switch {
		case network == "tcp4" && a.IP.To4() == nil:
			continue
		case network == "tcp6" && a.IP.To4() != nil:
			continue
		}
		ips = append(ips, a.IP.String())
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("lookup %s: no addresses for %s", host, network)
	}
	return ips, nil
}

func (d *Dialer) connect(ctx context.Context, network string, ips []string, port string) (net.Conn, error) {
	nd := &net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	var errs []error
	for _, ip := range ips {
		target := net.JoinHostPort(ip, port)
		_, phase := tracing.StartPhase(ctx, d.Tracers.Socket, "socket connect",
			attribute.String("network.peer.address", ip),
		)
		conn, err := nd.DialContext(ctx, network, target)
		phase.End(err)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

func (d *Dialer) handshake(ctx context.Context, conn net.Conn, host string, base *tls.Config) (_ net.Conn, err error) {
	cfg := base.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}

	ctx, phase := tracing.StartPhase(ctx, d.Tracers.TLS, "tls handshake",
		attribute.String("tls.server_name", cfg.ServerName),
	)
	tc := tls.Client(conn, cfg)
	err = tc.HandshakeContext(ctx)
	if err != nil {
		phase.End(err)
		_ = conn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	state := tc.ConnectionState()
	phase.End(nil,
		attribute.String("tls.protocol.version", tls.VersionName(state.Version)),
		attribute.String("tls.next_protocol", state.NegotiatedProtocol),
	)
	return tc, nil
}

package probe_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/torosent/connprobe/internal/config"
	"github.com/torosent/connprobe/internal/probe"
	"github.com/torosent/connprobe/internal/telemetry"
	"github.com/torosent/connprobe/internal/tracing"
)

func recordingTracers(t *testing.T) (tracing.Tracers, *telemetry.Engine) {
	t.Helper()
	provider := tracing.New()
	engine := telemetry.NewEngine("test")
	sub := telemetry.NewSubscription(engine, provider.TracerProvider(), 0)
	require.NoError(t, sub.Start())
	t.Cleanup(func() {
		_ = sub.Stop(context.Background())
		_ = provider.Shutdown(context.Background())
	})
	return provider.Tracers(), engine
}

func probeConfig(kind config.ProbeKind, target string) config.ProbeConfig {
	return config.ProbeConfig{
		Kind:             kind,
		Target:           target,
		Method:           http.MethodGet,
		Timeout:          5 * time.Second,
		FreshConnections: true,
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := probe.New(probeConfig("mongo", "localhost:27017"), tracing.NoopTracers())
	assert.Error(t, err)
}

func TestHTTPProbeSuccessAndExpectation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":{"db":"up"}}`)
	}))
	defer srv.Close()

	tracers, engine := recordingTracers(t)
	cfg := probeConfig(config.ProbeKindHTTP, srv.URL)
	cfg.ExpectJSONPath = "status.db"

	p, err := probe.New(cfg, tracers)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "http", p.Name())

	require.NoError(t, p.Probe(context.Background()))
	require.NoError(t, p.Probe(context.Background()))

	r := engine.Report()
	assert.Equal(t, 2, r.ConnectionSetup.Count, "fresh connections dial every attempt")
	assert.Equal(t, 2, r.SocketConnect.Count)
	assert.Zero(t, r.TLSHandshake.Count)

	cfg.ExpectJSONPath = "status.cache"
	missing, err := probe.NewHTTP(cfg, tracers)
	require.NoError(t, err)
	var expErr *probe.ExpectationError
	require.ErrorAs(t, missing.Probe(context.Background()), &expErr)
	assert.Equal(t, "status.cache", expErr.Path)
}

func TestHTTPProbeStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := probe.NewHTTP(probeConfig(config.ProbeKindHTTP, srv.URL), tracing.NoopTracers())
	require.NoError(t, err)

	var statusErr *probe.StatusError
	require.ErrorAs(t, p.Probe(context.Background()), &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "database unavailable", statusErr.Body)
}

func TestHTTPProbeOverTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	tracers, engine := recordingTracers(t)
	cfg := probeConfig(config.ProbeKindHTTP, srv.URL)
	cfg.Insecure = true

	p, err := probe.NewHTTP(cfg, tracers)
	require.NoError(t, err)
	require.NoError(t, p.Probe(context.Background()))

	r := engine.Report()
	assert.Equal(t, 1, r.TLSHandshake.Count)
	assert.Equal(t, int64(1), r.TLSHandshake.Success)
}

// serveRESP answers PING with PONG, HELLO with an unknown-command error and
// anything else with OK, which is enough for a RESP2 client handshake.
func serveRESP(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				rd := bufio.NewReader(c)
				for {
					args, err := readCommand(rd)
					if err != nil {
						return
					}
					reply := "+OK\r\n"
					switch strings.ToUpper(args[0]) {
					case "PING":
						reply = "+PONG\r\n"
					case "HELLO":
						reply = "-ERR unknown command 'HELLO'\r\n"
					}
					if _, err := io.WriteString(c, reply); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func readCommand(rd *bufio.Reader) ([]string, error) {
	line, err := rd.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected line %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil || n < 1 {
		return nil, fmt.Errorf("bad array header %q", line)
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		header, err := rd.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(header, "$")))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(rd, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestRedisProbe(t *testing.T) {
	addr := serveRESP(t)
	tracers, engine := recordingTracers(t)

	p, err := probe.New(probeConfig(config.ProbeKindRedis, addr), tracers)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "redis", p.Name())

	require.NoError(t, p.Probe(context.Background()))
	require.NoError(t, p.Probe(context.Background()))

	r := engine.Report()
	assert.Equal(t, 2, r.ConnectionSetup.Count)
	assert.Equal(t, int64(2), r.SocketConnect.Success)
	assert.Zero(t, r.DNSLookup.Count, "IP literal targets skip resolution")
}

func TestRedisProbeSharedConnection(t *testing.T) {
	addr := serveRESP(t)
	tracers, engine := recordingTracers(t)

	cfg := probeConfig(config.ProbeKindRedis, addr)
	cfg.FreshConnections = false
	p := probe.NewRedis(cfg, tracers)
	defer p.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Probe(context.Background()))
	}
	assert.Equal(t, 1, engine.Report().ConnectionSetup.Count)
}

func TestRedisProbeConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	tracers, engine := recordingTracers(t)
	p := probe.NewRedis(probeConfig(config.ProbeKindRedis, addr), tracers)
	defer p.Close()

	require.Error(t, p.Probe(context.Background()))
	r := engine.Report()
	assert.GreaterOrEqual(t, r.ConnectionSetup.Failure, int64(1))
	assert.GreaterOrEqual(t, r.SocketConnect.Failure, int64(1))
}

func TestGRPCProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("orders", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(ln) }()
	defer srv.Stop()

	tracers, engine := recordingTracers(t)
	cfg := probeConfig(config.ProbeKindGRPC, ln.Addr().String())

	p, err := probe.New(cfg, tracers)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "grpc", p.Name())

	require.NoError(t, p.Probe(context.Background()))
	assert.Equal(t, 1, engine.Report().ConnectionSetup.Count)

	cfg.GRPCService = "orders"
	orders := probe.NewGRPC(cfg, tracers)
	defer orders.Close()

	var notServing *probe.NotServingError
	require.ErrorAs(t, orders.Probe(context.Background()), &notServing)
	assert.Equal(t, "NOT_SERVING", notServing.Status)
	assert.True(t, errors.As(orders.Probe(context.Background()), &notServing))
}

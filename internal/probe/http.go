package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/torosent/connprobe/internal/config"
	"github.com/torosent/connprobe/internal/dialer"
	"github.com/torosent/connprobe/internal/httpclient"
	"github.com/torosent/connprobe/internal/tracing"
)

// maxBodyBytes bounds how much of a response is read for the JSON check.
const maxBodyBytes = 1 << 20

// HTTP probes a database REST gateway.
type HTTP struct {
	client     *http.Client
	builder    *httpclient.RequestBuilder
	expectPath string
}

// NewHTTP creates an http prober. The URL scheme decides whether TLS is used.
func NewHTTP(cfg config.ProbeConfig, tracers tracing.Tracers) (*HTTP, error) {
	builder, err := httpclient.NewRequestBuilder(cfg)
	if err != nil {
		return nil, err
	}
	d := dialer.New(tracers, tlsConfig(cfg, "h2", "http/1.1"))
	return &HTTP{
		client:     httpclient.NewClient(cfg.Timeout, d, cfg.FreshConnections),
		builder:    builder,
		expectPath: strings.TrimSpace(cfg.ExpectJSONPath),
	}, nil
}

func (p *HTTP) Name() string { return string(config.ProbeKindHTTP) }

func (p *HTTP) Probe(ctx context.Context) error {
	req, err := p.builder.Build(ctx)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	if p.expectPath != "" && !gjson.GetBytes(body, p.expectPath).Exists() {
		return &ExpectationError{Path: p.expectPath}
	}
	return nil
}

func (p *HTTP) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

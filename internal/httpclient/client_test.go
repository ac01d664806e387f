package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/torosent/connprobe/internal/config"
	"github.com/torosent/connprobe/internal/dialer"
	"github.com/torosent/connprobe/internal/telemetry"
	"github.com/torosent/connprobe/internal/tracing"
)

func TestBuildRequestWithHeaders(t *testing.T) {
	cfg := config.ProbeConfig{
		Method: "post",
		Target: "http://example.com/dbs/probe",
		Headers: map[string]string{
			"content-type": "application/json",
			"X-Ms-Version": "2018-12-31",
		},
		Body: `{"query":"SELECT 1"}`,
	}

	builder, err := NewRequestBuilder(cfg)
	if err != nil {
		t.Fatalf("expected builder, got error: %v", err)
	}

	req, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("expected request, got error: %v", err)
	}

	if req.Method != http.MethodPost {
		t.Fatalf("expected method POST, got %s", req.Method)
	}
	if req.URL.String() != cfg.Target {
		t.Fatalf("expected URL %s, got %s", cfg.Target, req.URL.String())
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("expected canonical Content-Type header, got %q", req.Header.Get("Content-Type"))
	}
	if req.Header.Get("X-Ms-Version") != "2018-12-31" {
		t.Fatalf("expected X-Ms-Version header, got %q", req.Header.Get("X-Ms-Version"))
	}

	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	if string(bodyBytes) != cfg.Body {
		t.Fatalf("expected body %q, got %q", cfg.Body, string(bodyBytes))
	}
	if req.ContentLength != int64(len(cfg.Body)) {
		t.Fatalf("expected content length %d, got %d", len(cfg.Body), req.ContentLength)
	}

	// Each Build returns independent headers.
	req.Header.Set("X-Ms-Version", "changed")
	again, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	if again.Header.Get("X-Ms-Version") != "2018-12-31" {
		t.Fatalf("headers leaked between builds")
	}
}

func TestRequestBuilder_InvalidHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"blank key", map[string]string{"  ": "x"}},
		{"newline in key", map[string]string{"X-Bad\nKey": "x"}},
		{"newline in value", map[string]string{"X-Key": "a\r\nb"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequestBuilder(config.ProbeConfig{Target: "http://example.com", Headers: tt.headers})
			if err == nil {
				t.Fatalf("expected error for headers %v", tt.headers)
			}
		})
	}
}

func TestRequestBuilder_MethodFallbackAndTarget(t *testing.T) {
	builder, err := NewRequestBuilder(config.ProbeConfig{Target: " http://example.com "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != http.MethodGet {
		t.Errorf("expected GET fallback, got %s", req.Method)
	}
	if req.Body != nil && req.Body != http.NoBody {
		t.Errorf("expected no body")
	}

	if got := req.Header.Get("User-Agent"); got != "connprobe" {
		t.Errorf("expected default User-Agent, got %q", got)
	}

	if _, err := NewRequestBuilder(config.ProbeConfig{}); err == nil {
		t.Errorf("expected error for missing target")
	}
	if _, err := NewRequestBuilder(config.ProbeConfig{Target: "ftp://example.com/file"}); err == nil {
		t.Errorf("expected error for non-http scheme")
	}
	if _, err := NewRequestBuilder(config.ProbeConfig{Target: "example.com/health"}); err == nil {
		t.Errorf("expected error for relative target")
	}
}

func TestClientTimeoutApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(50*time.Millisecond, dialer.New(tracing.NoopTracers(), nil), false)
	_, err := client.Get(srv.URL)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !strings.Contains(err.Error(), "Client.Timeout") && !strings.Contains(err.Error(), "deadline") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestFreshConnectionsDialEveryRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	provider := tracing.New()
	defer provider.Shutdown(context.Background())
	engine := telemetry.NewEngine("")
	sub := telemetry.NewSubscription(engine, provider.TracerProvider(), 0)
	if err := sub.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sub.Stop(context.Background())

	tests := []struct {
		fresh bool
		want  int
	}{
		{fresh: true, want: 3},
		{fresh: false, want: 1},
	}
	for _, tt := range tests {
		engine.Reset()
		client := NewClient(time.Second, dialer.New(provider.Tracers(), nil), tt.fresh)
		for i := 0; i < 3; i++ {
			resp, err := client.Get(srv.URL)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		client.CloseIdleConnections()
		if got := engine.Report().ConnectionSetup.Count; got != tt.want {
			t.Errorf("fresh=%v: connection setups = %d, want %d", tt.fresh, got, tt.want)
		}
	}
}

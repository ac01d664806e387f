package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/torosent/connprobe/internal/config"
	"github.com/torosent/connprobe/internal/dialer"
)

const userAgent = "connprobe"

// RequestBuilder holds a validated request template for the http probe.
type RequestBuilder struct {
	method  string
	target  *url.URL
	headers http.Header
	body    []byte
}

func NewRequestBuilder(cfg config.ProbeConfig) (*RequestBuilder, error) {
	raw := strings.TrimSpace(cfg.Target)
	if raw == "" {
		return nil, errors.New("target URL is required")
	}
	target, err := url.ParseRequestURI(raw)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("target scheme %q is not http or https", target.Scheme)
	}

	headers, err := probeHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}

	b := &RequestBuilder{
		method:  http.MethodGet,
		target:  target,
		headers: headers,
	}
	if m := strings.TrimSpace(cfg.Method); m != "" {
		b.method = strings.ToUpper(m)
	}
	if cfg.Body != "" {
		b.body = []byte(cfg.Body)
	}
	return b, nil
}

// probeHeaders canonicalizes configured headers and rejects anything that
// would not survive the wire.
func probeHeaders(in map[string]string) (http.Header, error) {
	h := make(http.Header, len(in)+1)
	for key, value := range in {
		name := strings.TrimSpace(key)
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, fmt.Errorf("invalid header value for %s", http.CanonicalHeaderKey(name))
		}
		h.Set(name, value)
	}
	if h.Get("User-Agent") == "" {
		h.Set("User-Agent", userAgent)
	}
	return h, nil
}

// Build returns a new request per attempt. Headers are copied so callers may
// mutate them.
func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if len(b.body) > 0 {
		body = bytes.NewReader(b.body)
	}
	req, err := http.NewRequestWithContext(ctx, b.method, b.target.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = b.headers.Clone()
	return req, nil
}

// NewClient returns a client whose transport dials through d, so each new
// connection reports its phases. With fresh set, keep-alives are off and
// every attempt opens a new connection.
func NewClient(timeout time.Duration, d *dialer.Dialer, fresh bool) *http.Client {
	return &http.Client{
		Timeout: max(timeout, 0),
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           d.DialContext,
			DialTLSContext:        d.DialTLSContext,
			ForceAttemptHTTP2:     true,
			DisableKeepAlives:     fresh,
			MaxIdleConnsPerHost:   1,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

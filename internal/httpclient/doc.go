// Package httpclient builds the HTTP client used by the http prober.
//
// The client dials through [dialer.Dialer], so every new connection reports
// its DNS, socket connect and TLS phases. With fresh connections enabled,
// keep-alives are disabled and every request exercises the full
// connection-establishment path:
//
//	d := dialer.New(provider.Tracers(), tlsConfig)
//	client := httpclient.NewClient(5*time.Second, d, true)
//
// # Request Building
//
// [NewRequestBuilder] validates the probe's method, target and headers once;
// [RequestBuilder.Build] then produces a fresh request per attempt:
//
//	builder, err := httpclient.NewRequestBuilder(cfg.Probe)
//	req, err := builder.Build(ctx)
package httpclient

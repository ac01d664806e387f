// Package telemetry aggregates connection-establishment phase timings.
//
// Instrumented dialers end one span per phase on a tracer named after a
// source identifier. A [Subscription] receives those completion events,
// maps the source to a [Category] and records a sample into the
// [Engine]. Reports are computed on demand from snapshots, so ingestion is
// never blocked by percentile computation.
//
// # Engine
//
//	engine := telemetry.NewEngine(runtime.Version())
//	sub := telemetry.NewSubscription(engine, tp, 2*time.Second) // tp may be nil
//	sub.Start()
//	defer sub.Stop(context.Background())
//
//	// Feed events directly, or register sub as an sdktrace.SpanProcessor.
//	sub.OnEvent(telemetry.SourceDNS, 12*time.Millisecond, codes.Ok)
//
//	report := engine.Report()
//	engine.Reset()
//
// # Thread Safety
//
// Record, Report and Reset may be called from any number of goroutines.
// Samples live in striped shards; Reset takes the engine write lock so it
// is atomic relative to every single Record.
package telemetry

package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "connprobe",
		Short:         "Continuously dial a database endpoint and aggregate connection phase timings",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("listen", defaultListen, "Address of the HTTP report endpoint")

	// Probe flags
	flags.String("probe-kind", string(ProbeKindHTTP), "Database client to exercise: 'http', 'redis' or 'grpc'")
	flags.String("target", "", "Probe target (URL for http, host:port for redis and grpc)")
	flags.String("method", http.MethodGet, "HTTP method for http probes")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("body", "", "Inline request body for http probes")
	flags.DurationP("interval", "i", defaultInterval, "Time between probe attempts")
	flags.Duration("timeout", defaultTimeout, "Per-attempt timeout (0 means none)")
	flags.Bool("fresh-connections", true, "Dial a new connection for every attempt")
	flags.Bool("tls", false, "Use TLS for redis and grpc probes")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.String("server-name", "", "TLS server name override")
	flags.String("expect-json-path", "", "gjson path that must exist in http probe responses")
	flags.String("redis-password", "", "Redis AUTH password")
	flags.Int("redis-db", 0, "Redis database index")
	flags.String("grpc-service", "", "Service name passed to the gRPC health check (empty checks the server)")

	// Change feed flags
	flags.String("changefeed-url", "", "NATS URL of the database change feed (empty disables the consumer)")
	flags.String("changefeed-subject", "", "NATS subject carrying change notifications")

	// Output flags
	flags.Duration("stream-interval", defaultStreamInterval, "Push interval of the websocket report stream")
	flags.Duration("drain-timeout", defaultDrainTimeout, "Max time to wait for in-flight phase events on shutdown")
	flags.String("report-file", "", "Write the final report to this file on shutdown")
	flags.String("report-format", string(ReportFormatText), "Final report format: 'text', 'json' or 'yaml'")
	flags.StringSlice("threshold", nil, "Final report assertion (repeatable, e.g. 'connection_setup:p95 < 500')")
	flags.Bool("progress", false, "Print a one-line status to stderr every second")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.Bool("log-json", false, "Emit JSON formatted logs")
	flags.String("runtime-version", "", "Runtime identifier reported verbatim (defaults to the Go version)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"listen", &cfg.Listen},
		{"target", &cfg.Probe.Target},
		{"method", &cfg.Probe.Method},
		{"body", &cfg.Probe.Body},
		{"server-name", &cfg.Probe.ServerName},
		{"expect-json-path", &cfg.Probe.ExpectJSONPath},
		{"redis-password", &cfg.Probe.RedisPassword},
		{"grpc-service", &cfg.Probe.GRPCService},
		{"changefeed-url", &cfg.ChangeFeed.URL},
		{"changefeed-subject", &cfg.ChangeFeed.Subject},
		{"report-file", &cfg.ReportFile},
		{"log-level", &cfg.Log.Level},
		{"runtime-version", &cfg.RuntimeVersion},
	}
	for _, s := range strs {
		if !fs.Changed(s.name) {
			continue
		}
		val, err := fs.GetString(s.name)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(val)
	}

	if fs.Changed("probe-kind") {
		val, err := fs.GetString("probe-kind")
		if err != nil {
			return err
		}
		cfg.Probe.Kind = ProbeKind(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("report-format") {
		val, err := fs.GetString("report-format")
		if err != nil {
			return err
		}
		cfg.ReportFormat = ReportFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"interval", &cfg.Probe.Interval},
		{"timeout", &cfg.Probe.Timeout},
		{"stream-interval", &cfg.StreamInterval},
		{"drain-timeout", &cfg.DrainTimeout},
	}
	for _, d := range durations {
		if !fs.Changed(d.name) {
			continue
		}
		val, err := fs.GetDuration(d.name)
		if err != nil {
			return err
		}
		*d.dst = val
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"fresh-connections", &cfg.Probe.FreshConnections},
		{"tls", &cfg.Probe.TLS},
		{"insecure", &cfg.Probe.Insecure},
		{"log-json", &cfg.Log.JSON},
		{"progress", &cfg.Progress},
	}
	for _, b := range bools {
		if !fs.Changed(b.name) {
			continue
		}
		val, err := fs.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = val
	}

	if fs.Changed("redis-db") {
		val, err := fs.GetInt("redis-db")
		if err != nil {
			return err
		}
		cfg.Probe.RedisDB = val
	}

	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Probe.Headers == nil {
			cfg.Probe.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Probe.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return nil
}

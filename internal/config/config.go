// Package config provides configuration loading and validation for connprobe.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"
)

type ProbeKind string

const (
	ProbeKindHTTP  ProbeKind = "http"
	ProbeKindRedis ProbeKind = "redis"
	ProbeKindGRPC  ProbeKind = "grpc"
)

type ReportFormat string

const (
	ReportFormatText ReportFormat = "text"
	ReportFormatJSON ReportFormat = "json"
	ReportFormatYAML ReportFormat = "yaml"
)

type Config struct {
	Listen         string           `mapstructure:"listen"`
	Probe          ProbeConfig      `mapstructure:"probe"`
	ChangeFeed     ChangeFeedConfig `mapstructure:"changefeed"`
	Log            LogConfig        `mapstructure:"log"`
	StreamInterval time.Duration    `mapstructure:"stream_interval"`
	DrainTimeout   time.Duration    `mapstructure:"drain_timeout"`
	ReportFile     string           `mapstructure:"report_file"`
	ReportFormat   ReportFormat     `mapstructure:"report_format"`
	Progress       bool             `mapstructure:"progress"` // one-line status on stderr
	Thresholds     []string         `mapstructure:"thresholds"`
	RuntimeVersion string           `mapstructure:"runtime_version"`
	ConfigFile     string           `mapstructure:"-"`
}

// ProbeConfig describes the database operation the runner repeats.
type ProbeConfig struct {
	Kind             ProbeKind         `mapstructure:"kind"`
	Target           string            `mapstructure:"target"` // URL for http, host:port otherwise
	Method           string            `mapstructure:"method"`
	Headers          map[string]string `mapstructure:"headers"`
	Body             string            `mapstructure:"body"`
	Interval         time.Duration     `mapstructure:"interval"`
	Timeout          time.Duration     `mapstructure:"timeout"`
	FreshConnections bool              `mapstructure:"fresh_connections"` // dial a new connection per attempt
	TLS              bool              `mapstructure:"tls"`               // redis and grpc only; http follows the URL scheme
	Insecure         bool              `mapstructure:"insecure_skip_verify"`
	ServerName       string            `mapstructure:"server_name"`
	ExpectJSONPath   string            `mapstructure:"expect_json_path"` // http: gjson path that must exist in the response
	RedisPassword    string            `mapstructure:"redis_password"`
	RedisDB          int               `mapstructure:"redis_db"`
	GRPCService      string            `mapstructure:"grpc_service"`
}

// ChangeFeedConfig enables the NATS change-feed consumer when URL is set.
type ChangeFeedConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Enabled reports whether the change-feed consumer should run.
func (c ChangeFeedConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Listen) == "" {
		issues = append(issues, "listen address is required")
	} else if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		issues = append(issues, fmt.Sprintf("listen address %q is invalid: %v", c.Listen, err))
	}

	issues = append(issues, validateProbeConfig(c.Probe)...)

	if c.ChangeFeed.Enabled() && strings.TrimSpace(c.ChangeFeed.Subject) == "" {
		issues = append(issues, "changefeed subject is required when changefeed url is set")
	}
	if c.StreamInterval <= 0 {
		issues = append(issues, "stream_interval must be > 0")
	}
	if c.DrainTimeout < 0 {
		issues = append(issues, "drain_timeout must be >= 0")
	}
	switch c.ReportFormat {
	case "", ReportFormatText, ReportFormatJSON, ReportFormatYAML:
	default:
		issues = append(issues, fmt.Sprintf("report format %q is not supported", c.ReportFormat))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log level %q is not supported", c.Log.Level))
	}

	if c.Probe.Insecure {
		fmt.Fprintln(os.Stderr, "WARNING: TLS verification is DISABLED (insecure_skip_verify: true). Handshake timings still reflect a full handshake, but the peer is not authenticated.")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateProbeConfig(p ProbeConfig) []string {
	var issues []string
	target := strings.TrimSpace(p.Target)

	switch p.Kind {
	case ProbeKindHTTP:
		if target == "" {
			issues = append(issues, "probe target is required (use --help for usage information)")
			break
		}
		u, err := url.Parse(target)
		if err != nil || u.Host == "" {
			issues = append(issues, fmt.Sprintf("probe target %q must be an absolute URL", target))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			issues = append(issues, fmt.Sprintf("probe target scheme %q must be http or https", u.Scheme))
		}
	case ProbeKindRedis, ProbeKindGRPC:
		if target == "" {
			issues = append(issues, "probe target is required (use --help for usage information)")
			break
		}
		if _, _, err := net.SplitHostPort(target); err != nil {
			issues = append(issues, fmt.Sprintf("probe target %q must be host:port", target))
		}
		if p.ExpectJSONPath != "" {
			issues = append(issues, "expect_json_path is only supported for http probes")
		}
	default:
		issues = append(issues, fmt.Sprintf("probe kind %q is not supported", p.Kind))
	}

	if p.Interval <= 0 {
		issues = append(issues, "probe interval must be > 0")
	}
	if p.Timeout < 0 {
		issues = append(issues, "probe timeout must be >= 0")
	}
	if p.RedisDB < 0 {
		issues = append(issues, "redis_db must be >= 0")
	}
	return issues
}

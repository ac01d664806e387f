package config

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultListen         = ":8080"
	defaultInterval       = 5 * time.Second
	defaultTimeout        = 10 * time.Second
	defaultStreamInterval = 5 * time.Second
	defaultDrainTimeout   = 2 * time.Second
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used when neither a file nor a flag
// sets a value.
func Defaults() *Config {
	return &Config{
		Listen: defaultListen,
		Probe: ProbeConfig{
			Kind:             ProbeKindHTTP,
			Method:           http.MethodGet,
			Headers:          map[string]string{},
			Interval:         defaultInterval,
			Timeout:          defaultTimeout,
			FreshConnections: true,
		},
		Log:            LogConfig{Level: "info"},
		StreamInterval: defaultStreamInterval,
		DrainTimeout:   defaultDrainTimeout,
		ReportFormat:   ReportFormatText,
		RuntimeVersion: runtime.Version(),
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Probe.Method = strings.ToUpper(cfg.Probe.Method)
	cfg.Probe.Target = strings.TrimSpace(cfg.Probe.Target)
	if cfg.Probe.Headers == nil {
		cfg.Probe.Headers = map[string]string{}
	}
	if cfg.RuntimeVersion == "" {
		cfg.RuntimeVersion = runtime.Version()
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "listen"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		cfg.Listen = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "probe"); ok {
		probe, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("probe: %w", err)
		}
		if err := applyProbeSettings(&cfg.Probe, probe); err != nil {
			return fmt.Errorf("probe.%w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "changefeed", "change_feed"); ok {
		feed, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("changefeed: %w", err)
		}
		if err := applyStrings(feed, map[string]*string{
			"url":     &cfg.ChangeFeed.URL,
			"subject": &cfg.ChangeFeed.Subject,
		}); err != nil {
			return fmt.Errorf("changefeed.%w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "log"); ok {
		logSettings, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("log: %w", err)
		}
		if err := applyStrings(logSettings, map[string]*string{"level": &cfg.Log.Level}); err != nil {
			return fmt.Errorf("log.%w", err)
		}
		if raw, ok := lookupSetting(logSettings, "json"); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("log.json: %w", err)
			}
			cfg.Log.JSON = val
		}
	}

	if err := applyDurations(settings, map[string]*time.Duration{
		"stream_interval": &cfg.StreamInterval,
		"drain_timeout":   &cfg.DrainTimeout,
	}); err != nil {
		return err
	}

	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	var format string
	if err := applyStrings(settings, map[string]*string{
		"report_file":     &cfg.ReportFile,
		"report_format":   &format,
		"runtime_version": &cfg.RuntimeVersion,
	}); err != nil {
		return err
	}
	if format != "" {
		cfg.ReportFormat = ReportFormat(strings.ToLower(format))
	}

	return nil
}

func applyProbeSettings(p *ProbeConfig, settings map[string]interface{}) error {
	var kind string
	if err := applyStrings(settings, map[string]*string{
		"kind":             &kind,
		"target":           &p.Target,
		"method":           &p.Method,
		"body":             &p.Body,
		"server_name":      &p.ServerName,
		"expect_json_path": &p.ExpectJSONPath,
		"redis_password":   &p.RedisPassword,
		"grpc_service":     &p.GRPCService,
	}); err != nil {
		return err
	}
	if kind != "" {
		p.Kind = ProbeKind(strings.ToLower(kind))
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if p.Headers == nil {
			p.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			p.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if err := applyDurations(settings, map[string]*time.Duration{
		"interval": &p.Interval,
		"timeout":  &p.Timeout,
	}); err != nil {
		return err
	}

	bools := map[string]*bool{
		"fresh_connections":    &p.FreshConnections,
		"tls":                  &p.TLS,
		"insecure_skip_verify": &p.Insecure,
	}
	for key, dst := range bools {
		raw, ok := lookupSetting(settings, key)
		if !ok {
			continue
		}
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = val
	}

	if raw, ok := lookupSetting(settings, "redis_db"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("redis_db: %w", err)
		}
		p.RedisDB = val
	}
	return nil
}

func applyStrings(settings map[string]interface{}, fields map[string]*string) error {
	for key, dst := range fields {
		raw, ok := lookupSetting(settings, key)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = strings.TrimSpace(val)
	}
	return nil
}

func applyDurations(settings map[string]interface{}, fields map[string]*time.Duration) error {
	for key, dst := range fields {
		raw, ok := lookupSetting(settings, key)
		if !ok {
			continue
		}
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = val
	}
	return nil
}

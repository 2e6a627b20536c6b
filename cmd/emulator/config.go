package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

type appConfig struct {
	controlAddr     string
	dataAddr        string
	logFormat       string
	logLevel        string
	metricsAddr     string
	controlTO       time.Duration
	logMetricsEvery time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	controlAddr := flag.String("control-addr", ":7000", "Control (reliable) listen address")
	dataAddr := flag.String("data-addr", ":7001", "Datagram (data) bind address")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	controlTO := flag.Duration("control-timeout", 60*time.Second, "Per-call control stream read/write deadline")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.controlAddr = *controlAddr
	cfg.dataAddr = *dataAddr
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.controlTO = *controlTO
	cfg.logMetricsEvery = *logMetricsEvery

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.controlTO <= 0 {
		return fmt.Errorf("control-timeout must be > 0")
	}
	return nil
}

// applyEnvOverrides maps PEDALNET_* environment variables to config fields
// unless a corresponding flag was explicitly set (flag wins), mirroring the
// teacher's cmd/can-server env-override precedence.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["control-addr"]; !ok {
		if v, ok := get("PEDALNET_CONTROL_ADDR"); ok && v != "" {
			c.controlAddr = v
		}
	}
	if _, ok := set["data-addr"]; !ok {
		if v, ok := get("PEDALNET_DATA_ADDR"); ok && v != "" {
			c.dataAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("PEDALNET_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("PEDALNET_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("PEDALNET_METRICS_ADDR"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["control-timeout"]; !ok {
		if v, ok := get("PEDALNET_CONTROL_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.controlTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid PEDALNET_CONTROL_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("PEDALNET_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid PEDALNET_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}

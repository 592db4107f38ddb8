package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// CLIConfig holds the settings parsed from command-line flags and their
// environment variable fallbacks.
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	MetricsAddr     string
	ShutdownTimeout time.Duration
	ShowVersion     bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("MINIACD_CONFIG", "config.json"),
		"Path to configuration file (env: MINIACD_CONFIG)")
	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("MINIACD_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: MINIACD_LOG_LEVEL)")
	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("MINIACD_LOG_FORMAT", "json"),
		"Log format: json, text (env: MINIACD_LOG_FORMAT)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr",
		getEnv("MINIACD_METRICS_ADDR", ":9090"),
		"Address to serve /metrics on, empty to disable (env: MINIACD_METRICS_ADDR)")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		30*time.Second,
		"Time allowed for gateways and data items to save state on shutdown")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "miniacd - dispatch-driven message routing daemon\n\nUsage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

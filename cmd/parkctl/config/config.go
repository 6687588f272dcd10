// Package config parses parkctl flags and environment variables.
//
// Flags take precedence over environment variables, which take precedence
// over defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

type Config struct {
	Command       string
	ForecasterURL string
	Timeout       time.Duration
	LogFormat     string
	LogLevel      string

	// current
	Lot  string
	Lead time.Duration

	// forecast
	File string
}

const usage = `usage: parkctl [flags] current -lot=<name>
       parkctl [flags] forecast -file=<series.json|->`

// ParseFlags parses os.Args and exits on error.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	return cfg
}

// Parse reads the global flags, the command name and the command's flags.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}

	global := flag.NewFlagSet("parkctl", flag.ContinueOnError)
	global.StringVar(&cfg.ForecasterURL, "forecaster-url", getEnv("FORECASTER_URL", "http://localhost:8081"), "Forecaster HTTP endpoint")
	global.DurationVar(&cfg.Timeout, "timeout", getEnvDuration("PARKCTL_TIMEOUT", 10*time.Second), "HTTP request timeout")
	global.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format (text|json)")
	global.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "warn"), "Log level (debug|info|warn|error)")
	if err := global.Parse(args); err != nil {
		return nil, err
	}

	rest := global.Args()
	if len(rest) == 0 {
		return nil, errors.New("command required")
	}
	cfg.Command = rest[0]

	cmd := flag.NewFlagSet(cfg.Command, flag.ContinueOnError)
	switch cfg.Command {
	case "current":
		cmd.StringVar(&cfg.Lot, "lot", getEnv("LOT", ""), "Lot name")
		cmd.DurationVar(&cfg.Lead, "lead", getEnvDuration("LEAD_TIME", 3*time.Hour), "Window for the peak forecast")
	case "forecast":
		cmd.StringVar(&cfg.File, "file", "-", "JSON request body, - for stdin")
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}
	if err := cmd.Parse(rest[1:]); err != nil {
		return nil, err
	}

	if cfg.ForecasterURL == "" {
		return nil, errors.New("-forecaster-url is required")
	}
	if cfg.Command == "current" && cfg.Lot == "" {
		return nil, errors.New("-lot is required")
	}
	if cfg.Lead < 0 {
		return nil, fmt.Errorf("-lead must be >= 0, got %v", cfg.Lead)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

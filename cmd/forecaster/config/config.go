// Package config provides configuration parsing for the forecaster.
//
// Settings come from command-line flags with environment variables as
// fallbacks; flags win. An optional .env file is loaded into the environment
// before flags are parsed, so it acts as the lowest-priority source.
//
// Single-lot mode uses the individual lot flags (-lot, -adapter, ...).
// Multi-lot mode is enabled with -config-file pointing at a YAML file:
//
//	lots:
//	  - name: north-deck
//	    adapter: http
//	    adapterConfig:
//	      url: http://dashboard:5000/api/occupancy/hourly?lot=north-deck
//	    totalSlots: 120
//	    liveUrl: http://dashboard:5000/api/slots?lot=north-deck
//	  - name: visitor
//	    adapter: prometheus
//	    adapterConfig:
//	      query: avg(parking_occupancy_rate{lot="visitor"})
//
// Fields left out of a lot get the same defaults as the flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/HatiCode/parkcast/pkg/models"
	"github.com/HatiCode/parkcast/pkg/occupancy"
	"github.com/HatiCode/parkcast/pkg/storage"
)

// Lot defaults.
const (
	DefaultStep     = time.Hour
	DefaultWindow   = 7 * 24 * time.Hour
	DefaultSchedule = "@every 5m"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen     string
	LogFormat  string
	LogLevel   string
	StaleAfter time.Duration
	ConfigFile string

	Storage       string
	MemoryTTL     time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Lot is the single-lot configuration built from flags.
	// Ignored when ConfigFile is set.
	Lot LotConfig
}

// LotConfig describes one forecast loop.
type LotConfig struct {
	Name          string            `yaml:"name"`
	Adapter       string            `yaml:"adapter"`
	AdapterConfig map[string]string `yaml:"adapterConfig"`

	SeasonLength int     `yaml:"seasonLength"`
	Alpha        float64 `yaml:"alpha"`
	Beta         float64 `yaml:"beta"`
	Gamma        float64 `yaml:"gamma"`
	Horizon      int     `yaml:"horizon"`

	Step     time.Duration `yaml:"step"`
	Window   time.Duration `yaml:"window"`
	Schedule string        `yaml:"schedule"`

	TotalSlots int    `yaml:"totalSlots"`
	Rounding   string `yaml:"rounding"`
	LiveURL    string `yaml:"liveUrl"`
}

// Params returns the Holt-Winters parameters of the lot.
func (l LotConfig) Params() models.HoltWintersParams {
	return models.HoltWintersParams{
		SeasonLength: l.SeasonLength,
		Alpha:        l.Alpha,
		Beta:         l.Beta,
		Gamma:        l.Gamma,
		Horizon:      l.Horizon,
	}
}

type fileConfig struct {
	Lots []LotConfig `yaml:"lots"`
}

// ParseFlags loads the env file, then parses os.Args into a Config.
// It exits the process on invalid input.
func ParseFlags() *Config {
	if err := LoadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Parse registers the forecaster flags on flags and parses args.
func Parse(flags *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	flags.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")
	flags.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flags.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flags.DurationVar(&cfg.StaleAfter, "stale-after", getEnvDuration("STALE_AFTER", 2*time.Hour), "Age after which a snapshot is reported stale")
	flags.StringVar(&cfg.ConfigFile, "config-file", getEnv("CONFIG_FILE", ""), "YAML file with one entry per lot (enables multi-lot mode)")

	flags.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory or redis")
	flags.DurationVar(&cfg.MemoryTTL, "memory-ttl", getEnvDuration("MEMORY_TTL", 2*time.Hour), "In-memory snapshot TTL (0 keeps snapshots until replaced)")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flags.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flags.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flags.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 2*time.Hour), "Redis snapshot TTL")

	lot := &cfg.Lot
	flags.StringVar(&lot.Name, "lot", getEnv("LOT", ""), "Lot name (required in single-lot mode)")
	flags.StringVar(&lot.Adapter, "adapter", getEnv("ADAPTER", ""), "History adapter: http, prometheus, or victoriametrics")
	flags.IntVar(&lot.SeasonLength, "season-length", getEnvInt("SEASON_LENGTH", models.DefaultSeasonLength), "Steps per seasonal cycle")
	flags.Float64Var(&lot.Alpha, "alpha", getEnvFloat("ALPHA", models.DefaultAlpha), "Level smoothing factor in (0,1)")
	flags.Float64Var(&lot.Beta, "beta", getEnvFloat("BETA", models.DefaultBeta), "Trend smoothing factor in (0,1)")
	flags.Float64Var(&lot.Gamma, "gamma", getEnvFloat("GAMMA", models.DefaultGamma), "Seasonal smoothing factor in (0,1)")
	flags.IntVar(&lot.Horizon, "horizon", getEnvInt("HORIZON", models.DefaultHorizon), "Number of steps to forecast")
	flags.DurationVar(&lot.Step, "step", getEnvDuration("STEP", DefaultStep), "Series step")
	flags.DurationVar(&lot.Window, "window", getEnvDuration("WINDOW", DefaultWindow), "History window requested from the adapter")
	flags.StringVar(&lot.Schedule, "schedule", getEnv("SCHEDULE", DefaultSchedule), "Cron schedule of the forecast loop")
	flags.IntVar(&lot.TotalSlots, "total-slots", getEnvInt("TOTAL_SLOTS", 0), "Slots in the lot, for free-slot estimates (0 disables)")
	flags.StringVar(&lot.Rounding, "rounding", getEnv("ROUNDING", occupancy.RoundFloor), "Free-slot rounding: floor, round, or ceil")
	flags.StringVar(&lot.LiveURL, "live-url", getEnv("LIVE_URL", ""), "Slot status endpoint for live occupancy readings")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	lot.AdapterConfig = parseAdapterConfig()

	if cfg.ConfigFile == "" {
		if lot.Name == "" {
			return nil, errors.New("--lot is required")
		}
		if lot.Adapter == "" {
			return nil, errors.New("--adapter is required")
		}
	}

	return cfg, nil
}

// parseAdapterConfig collects ADAPTER_* environment variables into a map keyed
// by the lower camel case of the suffix (ADAPTER_VALUE_PATH becomes valuePath).
// ADAPTER itself selects the kind and is skipped.
func parseAdapterConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, "ADAPTER_") || len(key) == len("ADAPTER_") {
			continue
		}
		config[toLowerCamelCase(key[len("ADAPTER_"):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	var b strings.Builder
	nextUpper := false
	for i, r := range strings.ToLower(s) {
		if r == '_' {
			nextUpper = i > 0
			continue
		}
		if nextUpper {
			r = unicode.ToUpper(r)
			nextUpper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
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

// LoadLots returns the validated lot configurations: the file entries in
// multi-lot mode, or the single flag-built lot otherwise.
func LoadLots(cfg *Config) ([]LotConfig, error) {
	if cfg.ConfigFile == "" {
		lot := cfg.Lot
		if err := validateLot(&lot, 0); err != nil {
			return nil, err
		}
		return []LotConfig{lot}, nil
	}

	lots, err := loadFile(cfg.ConfigFile)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(lots))
	for i := range lots {
		if err := validateLot(&lots[i], i); err != nil {
			return nil, err
		}
		if seen[lots[i].Name] {
			return nil, fmt.Errorf("lot %q: duplicate name", lots[i].Name)
		}
		seen[lots[i].Name] = true
	}
	return lots, nil
}

func loadFile(path string) ([]LotConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var fc fileConfig
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if len(fc.Lots) == 0 {
		return nil, fmt.Errorf("config file %s: no lots defined", path)
	}
	return fc.Lots, nil
}

var historyAdapters = []string{"http", "prometheus", "victoriametrics"}

var roundingModes = []string{occupancy.RoundFloor, occupancy.RoundNearest, occupancy.RoundCeil}

// validateLot fills defaults for zero fields and rejects invalid settings.
func validateLot(l *LotConfig, index int) error {
	if err := storage.ValidateLotName(l.Name); err != nil {
		return fmt.Errorf("lot[%d]: %w", index, err)
	}

	if l.Adapter == "" {
		return fmt.Errorf("lot %q: adapter cannot be empty", l.Name)
	}
	if l.Adapter == "slots" {
		return fmt.Errorf("lot %q: slots adapter has no history, set liveUrl instead", l.Name)
	}
	if !slices.Contains(historyAdapters, l.Adapter) {
		return fmt.Errorf("lot %q: invalid adapter %q (must be one of %s)", l.Name, l.Adapter, strings.Join(historyAdapters, ", "))
	}

	if l.SeasonLength == 0 {
		l.SeasonLength = models.DefaultSeasonLength
	}
	if l.Alpha == 0 {
		l.Alpha = models.DefaultAlpha
	}
	if l.Beta == 0 {
		l.Beta = models.DefaultBeta
	}
	if l.Gamma == 0 {
		l.Gamma = models.DefaultGamma
	}
	if l.Horizon == 0 {
		l.Horizon = models.DefaultHorizon
	}
	if err := l.Params().Validate(); err != nil {
		return fmt.Errorf("lot %q: %w", l.Name, err)
	}
	if err := l.Params().CheckHorizon(); err != nil {
		return fmt.Errorf("lot %q: %w", l.Name, err)
	}

	if l.Step == 0 {
		l.Step = DefaultStep
	}
	if l.Step < time.Second {
		return fmt.Errorf("lot %q: step must be at least 1s", l.Name)
	}

	if l.Window == 0 {
		l.Window = DefaultWindow
	}
	need := l.Params().MinHistory()
	if steps := int(l.Window / l.Step); steps < need {
		return fmt.Errorf("lot %q: window %v holds %d steps, need at least %d", l.Name, l.Window, steps, need)
	}

	if l.Schedule == "" {
		l.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(l.Schedule); err != nil {
		return fmt.Errorf("lot %q: invalid schedule %q: %w", l.Name, l.Schedule, err)
	}

	if l.TotalSlots < 0 {
		return fmt.Errorf("lot %q: totalSlots cannot be negative", l.Name)
	}
	if l.Rounding == "" {
		l.Rounding = occupancy.RoundFloor
	}
	if !slices.Contains(roundingModes, l.Rounding) {
		return fmt.Errorf("lot %q: invalid rounding %q (must be floor, round, or ceil)", l.Name, l.Rounding)
	}

	return nil
}

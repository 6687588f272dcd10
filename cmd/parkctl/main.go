// Command parkctl queries a running parkcast forecaster.
//
// Usage:
//
//	parkctl -forecaster-url=http://forecaster:8081 current -lot=north-deck -lead=3h
//	parkctl forecast -file=series.json
//
// current prints the lot's latest snapshot summary with the busiest hour in
// the lead window. forecast posts a request body for a one-shot forecast and
// prints the response.
//
// Environment variables:
//
//	FORECASTER_URL  - HTTP endpoint of the forecaster (default: http://localhost:8081)
//	PARKCTL_TIMEOUT - HTTP request timeout (default: 10s)
//	LOT             - Lot for current
//	LEAD_TIME       - Peak window for current (default: 3h)
//	LOG_LEVEL       - Logging level: debug, info, warn, error (default: warn)
//	LOG_FORMAT      - Logging format: text, json (default: text)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HatiCode/parkcast/cmd/forecaster/logger"
	"github.com/HatiCode/parkcast/cmd/forecaster/router"
	"github.com/HatiCode/parkcast/cmd/parkctl/config"
)

func main() {
	cfg := config.ParseFlags()
	log := logger.NewWithWriter(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	c := NewClient(cfg.ForecasterURL, cfg.Timeout, log)
	if err := run(ctx, c, cfg, os.Stdin, os.Stdout); err != nil {
		log.Error("command failed", "command", cfg.Command, "error", err)
		os.Exit(1)
	}
}

// Summary is the output of the current command.
type Summary struct {
	Lot          string    `json:"lot"`
	GeneratedAt  time.Time `json:"generatedAt"`
	LastObserved time.Time `json:"lastObserved"`
	Stale        bool      `json:"stale"`
	CurrentRate  *float64  `json:"currentRate,omitempty"`
	NextRate     float64   `json:"nextRate"`
	Peak         *Peak     `json:"peak,omitempty"`
	RMSE         float64   `json:"rmse"`
}

func run(ctx context.Context, c *Client, cfg *config.Config, in io.Reader, out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	switch cfg.Command {
	case "current":
		s, stale, err := c.Current(ctx, cfg.Lot)
		if err != nil {
			return err
		}
		sum := Summary{
			Lot:          s.Lot,
			GeneratedAt:  s.GeneratedAt,
			LastObserved: s.LastObserved,
			Stale:        stale,
			CurrentRate:  s.CurrentRate,
			RMSE:         s.Fit.RMSE,
		}
		if len(s.Forecast) > 0 {
			sum.NextRate = s.Forecast[0]
		}
		if p, ok := PeakWithin(s, cfg.Lead); ok {
			sum.Peak = &p
		}
		if stale {
			c.logger.Warn("snapshot is stale", "lot", s.Lot, "generated_at", s.GeneratedAt)
		}
		return enc.Encode(sum)

	case "forecast":
		if cfg.File != "-" {
			f, err := os.Open(cfg.File)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		var req router.ForecastRequest
		if err := json.NewDecoder(in).Decode(&req); err != nil {
			return fmt.Errorf("read request: %w", err)
		}
		resp, err := c.Forecast(ctx, req)
		if err != nil {
			return err
		}
		return enc.Encode(resp)

	default:
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
}

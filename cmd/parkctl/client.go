package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/HatiCode/parkcast/cmd/forecaster/router"
	"github.com/HatiCode/parkcast/pkg/httpx"
	"github.com/HatiCode/parkcast/pkg/occupancy"
	"github.com/HatiCode/parkcast/pkg/storage"
)

// ErrNotFound is returned when the forecaster has no snapshot for a lot.
var ErrNotFound = errors.New("snapshot not found")

// Client talks to the forecaster HTTP API.
type Client struct {
	forecasterURL string
	client        *http.Client
	logger        *slog.Logger
}

// NewClient creates a Client for the forecaster at forecasterURL.
func NewClient(forecasterURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		forecasterURL: forecasterURL,
		client:        httpx.NewClient(timeout),
		logger:        logger,
	}
}

// Current fetches the latest snapshot of lot. stale reports whether the
// forecaster flagged it as outdated.
func (c *Client) Current(ctx context.Context, lot string) (snapshot *storage.Snapshot, stale bool, err error) {
	u := fmt.Sprintf("%s/forecast/current?lot=%s", c.forecasterURL, url.QueryEscape(lot))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, fmt.Errorf("lot %q: %w", lot, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, statusError(resp)
	}

	var s storage.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, false, fmt.Errorf("failed to decode forecast: %w", err)
	}

	stale = resp.Header.Get(router.StaleHeader) == "true"
	c.logger.Debug("fetched snapshot", "lot", lot, "generated_at", s.GeneratedAt, "stale", stale)
	return &s, stale, nil
}

// Forecast posts a series for a one-shot forecast.
func (c *Client) Forecast(ctx context.Context, fr router.ForecastRequest) (*router.ForecastResponse, error) {
	body, err := json.Marshal(fr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.forecasterURL+"/forecast", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to post series: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out router.ForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode forecast: %w", err)
	}
	return &out, nil
}

// statusError turns a non-200 reply into an error carrying the server's message.
func statusError(resp *http.Response) error {
	var e httpx.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return fmt.Errorf("forecaster returned status %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("forecaster returned status %d", resp.StatusCode)
}

// Peak is the busiest forecast step within a lead window.
type Peak struct {
	At        time.Time `json:"at"`
	Rate      float64   `json:"rate"`
	FreeSlots *int      `json:"freeSlots,omitempty"`
	Steps     int       `json:"steps"`
}

// PeakWithin returns the highest forecast rate over [next step ... now+lead].
// A lead shorter than one step still covers the next step; a lead beyond the
// horizon is cut to the last forecast step. ok is false for an empty forecast.
func PeakWithin(s *storage.Snapshot, lead time.Duration) (p Peak, ok bool) {
	if len(s.Forecast) == 0 {
		return Peak{}, false
	}

	step := time.Duration(s.StepSeconds) * time.Second
	leadSteps := 0
	if step > 0 {
		leadSteps = int(lead/step) - 1
	}
	if leadSteps >= len(s.Forecast) {
		leadSteps = len(s.Forecast) - 1
	}
	if leadSteps < 0 {
		leadSteps = 0
	}

	best := 0
	for i := 1; i <= leadSteps; i++ {
		if s.Forecast[i] > s.Forecast[best] {
			best = i
		}
	}

	p = Peak{Rate: occupancy.Clamp(s.Forecast[best]), Steps: leadSteps + 1}
	if best < len(s.ForecastTimes) {
		p.At = s.ForecastTimes[best]
	}
	if best < len(s.FreeSlots) {
		free := s.FreeSlots[best]
		p.FreeSlots = &free
	}
	return p, true
}

// Package router configures the forecaster's HTTP API.
//
// Routes:
//   - GET  /forecast/current?lot=<name> - latest stored snapshot of a lot
//   - POST /forecast                    - one-shot forecast of a posted series
//   - GET  /healthz                     - health check
//   - GET  /metrics                     - Prometheus metrics
//
// Snapshots older than the stale threshold carry an X-Parkcast-Stale header.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/parkcast/pkg/adapters"
	"github.com/HatiCode/parkcast/pkg/features"
	"github.com/HatiCode/parkcast/pkg/httpx"
	"github.com/HatiCode/parkcast/pkg/models"
	"github.com/HatiCode/parkcast/pkg/occupancy"
	"github.com/HatiCode/parkcast/pkg/storage"
)

// StaleHeader marks snapshots older than the stale threshold.
const StaleHeader = "X-Parkcast-Stale"

const maxBodyBytes = 1 << 20

// maxStepSeconds bounds stepSeconds so forecast timestamps stay representable.
const maxStepSeconds = 7 * 24 * 60 * 60

// SetupRoutes configures HTTP endpoints for the forecaster.
func SetupRoutes(store storage.Store, staleAfter time.Duration, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", healthHandler(store))
	mux.HandleFunc("GET /forecast/current", handleGetSnapshot(store, staleAfter, logger))
	mux.HandleFunc("POST /forecast", handleForecast(logger))
	mux.Handle("GET /metrics", promhttp.Handler())

	return httpx.Chain(mux, httpx.LoggingMiddleware(logger), httpx.RecoveryMiddleware(logger))
}

// healthHandler pings the store when it supports it.
func healthHandler(store storage.Store) http.Handler {
	pinger, ok := store.(interface{ Ping(context.Context) error })
	if !ok {
		return httpx.HealthHandler()
	}
	return httpx.HealthHandlerWithCheck(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pinger.Ping(ctx)
	})
}

// handleGetSnapshot returns a handler for GET /forecast/current?lot=<name>.
func handleGetSnapshot(store storage.Store, staleAfter time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lot := r.URL.Query().Get("lot")
		if lot == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "lot parameter required")
			return
		}
		if err := storage.ValidateLotName(lot); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid lot name format")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snapshot, found, err := store.GetLatest(ctx, lot)
		if err != nil {
			logger.Error("failed to get snapshot", "lot", lot, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("snapshot not found for lot %q", lot))
			return
		}

		if time.Since(snapshot.GeneratedAt) > staleAfter {
			w.Header().Set(StaleHeader, "true")
		}

		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// SeriesPoint is one hourly observation as the dashboard API reports it.
// T is in unix milliseconds.
type SeriesPoint struct {
	T             int64   `json:"t"`
	OccupancyRate float64 `json:"occupancyRate"`
}

// ForecastRequest is the body of POST /forecast. Omitted parameters take
// the model defaults.
type ForecastRequest struct {
	Series       []SeriesPoint `json:"series"`
	SeasonLength *int          `json:"seasonLength"`
	Alpha        *float64      `json:"alpha"`
	Beta         *float64      `json:"beta"`
	Gamma        *float64      `json:"gamma"`
	Horizon      *int          `json:"horizon"`
	StepSeconds  int           `json:"stepSeconds"`
}

// ForecastResponse is the body returned by POST /forecast. All rates are
// clamped to [0,1].
type ForecastResponse struct {
	Fitted     []float64                `json:"fitted"`
	Forecast   []float64                `json:"forecast"`
	Timestamps []time.Time              `json:"timestamps"`
	Fit        models.FitStats          `json:"fit"`
	Params     models.HoltWintersParams `json:"params"`
}

// params merges the request with the defaults.
func (req ForecastRequest) params() models.HoltWintersParams {
	p := models.DefaultHoltWintersParams()
	if req.SeasonLength != nil {
		p.SeasonLength = *req.SeasonLength
	}
	if req.Alpha != nil {
		p.Alpha = *req.Alpha
	}
	if req.Beta != nil {
		p.Beta = *req.Beta
	}
	if req.Gamma != nil {
		p.Gamma = *req.Gamma
	}
	if req.Horizon != nil {
		p.Horizon = *req.Horizon
	}
	return p
}

// handleForecast returns a handler for POST /forecast. It runs the model on
// the posted series without touching the store.
func handleForecast(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ForecastRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		step := time.Hour
		if req.StepSeconds < 0 || req.StepSeconds > maxStepSeconds {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("stepSeconds must be between 0 and %d", maxStepSeconds))
			return
		}
		if req.StepSeconds > 0 {
			step = time.Duration(req.StepSeconds) * time.Second
		}

		p := req.params()
		if err := p.Validate(); err != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, err)
			return
		}
		if err := p.CheckHorizon(); err != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, err)
			return
		}

		df := adapters.DataFrame{Rows: make([]adapters.Row, len(req.Series))}
		for i, pt := range req.Series {
			df.Rows[i] = adapters.Row{
				"ts":    time.UnixMilli(pt.T).UTC(),
				"value": pt.OccupancyRate,
			}
		}

		var history []float64
		var last time.Time
		if len(df.Rows) > 0 {
			b := features.NewBuilder()
			b.Step = step
			frame, err := b.BuildFeatures(df)
			if err != nil {
				httpx.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid series: %v", err))
				return
			}
			history = features.Values(frame)
			last, _ = features.LastTimestamp(frame)
		}

		fitted, forecast, err := models.HoltWintersAdditive(history, p)
		if err != nil {
			var pe *models.PreconditionError
			var ie *models.InvalidParameterError
			if errors.As(err, &pe) || errors.As(err, &ie) {
				httpx.WriteError(w, http.StatusUnprocessableEntity, err)
				return
			}
			logger.Error("one-shot forecast failed", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		resp := ForecastResponse{
			Fitted:     occupancy.ClampAll(fitted),
			Forecast:   occupancy.ClampAll(forecast),
			Timestamps: occupancy.Timestamps(last, step, len(forecast)),
			Fit:        models.ComputeFitStats(history, fitted, p.SeasonLength),
			Params:     p,
		}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

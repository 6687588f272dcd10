// Package main implements the forecast loop of one parking lot.
//
// A LotForecaster runs the pipeline
//
//	collect → buildFeatures → predict → clamp → free slots → storeSnapshot
//
// on a cron schedule. Each run replaces the lot's stored snapshot, which the
// HTTP API serves to the dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/HatiCode/parkcast/cmd/forecaster/logger"
	"github.com/HatiCode/parkcast/cmd/forecaster/metrics"
	"github.com/HatiCode/parkcast/pkg/adapters"
	"github.com/HatiCode/parkcast/pkg/features"
	"github.com/HatiCode/parkcast/pkg/models"
	"github.com/HatiCode/parkcast/pkg/occupancy"
	"github.com/HatiCode/parkcast/pkg/storage"
)

// Plan holds the per-lot settings of the loop that are not model parameters.
type Plan struct {
	Step       time.Duration
	Window     time.Duration
	Schedule   string
	TotalSlots int
	Rounding   string

	// Live, when set, is sampled on every run for the current occupancy.
	Live adapters.SlotCounter
}

// LotForecaster runs the forecast loop of one lot.
type LotForecaster struct {
	lot     string
	adapter adapters.Adapter
	model   models.Model
	builder *features.Builder
	store   storage.Store
	plan    Plan
	logger  *slog.Logger
	metrics *metrics.Metrics

	// now is overridable in tests.
	now func() time.Time
}

// NewLotForecaster creates a LotForecaster. metrics may be nil.
func NewLotForecaster(
	lot string,
	adapter adapters.Adapter,
	model models.Model,
	builder *features.Builder,
	store storage.Store,
	plan Plan,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *LotForecaster {
	if logger == nil {
		logger = slog.Default()
	}
	if builder == nil {
		builder = features.NewBuilder()
	}
	if plan.Step <= 0 {
		plan.Step = time.Hour
	}
	builder.Step = plan.Step

	return &LotForecaster{
		lot:     lot,
		adapter: adapter,
		model:   model,
		builder: builder,
		store:   store,
		plan:    plan,
		logger:  logger.With("lot", lot),
		metrics: metrics,
		now:     time.Now,
	}
}

// Lot returns the lot name.
func (f *LotForecaster) Lot() string {
	return f.lot
}

// Run executes Tick once, then on every firing of the schedule until ctx is
// canceled. A firing that overlaps a still-running tick is skipped.
// Tick errors are logged and do not stop the loop.
func (f *LotForecaster) Run(ctx context.Context) error {
	schedule, err := cron.ParseStandard(f.plan.Schedule)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", f.plan.Schedule, err)
	}

	cl := logger.Cron(f.logger)
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(schedule, cron.FuncJob(func() { f.runTick(ctx) }))

	f.logger.Info("starting forecast loop", "schedule", f.plan.Schedule, "window", f.plan.Window)
	f.runTick(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	f.logger.Info("forecast loop stopped")
	return ctx.Err()
}

func (f *LotForecaster) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := f.Tick(ctx); err != nil {
		f.logger.Error("forecast tick failed", "error", err)
	}
}

// Tick performs one forecast run and stores the resulting snapshot.
func (f *LotForecaster) Tick(ctx context.Context) error {
	start := f.now()

	df, collectDuration, err := f.collect(ctx)
	if err != nil {
		f.recordError("adapter", "collect_failed")
		return fmt.Errorf("collect: %w", err)
	}

	frame, err := f.builder.BuildFeatures(*df)
	if err != nil {
		f.recordError("features", "build_failed")
		return fmt.Errorf("build features: %w", err)
	}
	f.logger.Debug("built features", "rows", len(frame.Rows))

	forecast, predictDuration, err := f.predict(ctx, frame)
	if err != nil {
		var pe *models.PreconditionError
		if errors.As(err, &pe) {
			f.recordError("model", "insufficient_history")
			f.logger.Warn("not enough history to forecast", "have", pe.Have, "need", pe.Need)
		} else {
			f.recordError("model", "predict_failed")
		}
		return fmt.Errorf("predict: %w", err)
	}

	snapshot := f.buildSnapshot(ctx, frame, forecast, start)

	if err := f.store.Put(ctx, snapshot); err != nil {
		f.recordError("store", "put_failed")
		return fmt.Errorf("store: %w", err)
	}

	if f.metrics != nil {
		next := 0.0
		if len(snapshot.Forecast) > 0 {
			next = snapshot.Forecast[0]
		}
		f.metrics.RecordForecast(len(snapshot.History), next, snapshot.Fit)
	}

	f.logger.Info("forecast tick complete",
		"snapshot", snapshot.ID,
		"history_points", len(snapshot.History),
		"forecast_points", len(snapshot.Forecast),
		"fit_rmse", snapshot.Fit.RMSE,
		"collect_ms", collectDuration.Milliseconds(),
		"predict_ms", predictDuration.Milliseconds(),
		"total_ms", f.now().Sub(start).Milliseconds(),
	)
	return nil
}

func (f *LotForecaster) collect(ctx context.Context) (*adapters.DataFrame, time.Duration, error) {
	start := time.Now()

	df, err := f.adapter.Collect(ctx, int(f.plan.Window.Seconds()))
	if err != nil {
		return nil, 0, err
	}

	duration := time.Since(start)
	if f.metrics != nil {
		f.metrics.RecordCollect(duration.Seconds())
	}

	f.logger.Debug("collected history",
		"adapter", f.adapter.Name(),
		"rows", len(df.Rows),
		"window_seconds", int(f.plan.Window.Seconds()),
		"duration_ms", duration.Milliseconds(),
	)
	return df, duration, nil
}

func (f *LotForecaster) predict(ctx context.Context, frame models.FeatureFrame) (models.Forecast, time.Duration, error) {
	start := time.Now()

	forecast, err := f.model.Predict(ctx, frame)
	if err != nil {
		return models.Forecast{}, 0, err
	}

	duration := time.Since(start)
	if f.metrics != nil {
		f.metrics.RecordPredict(duration.Seconds())
	}

	f.logger.Debug("predicted forecast",
		"model", f.model.Name(),
		"values", len(forecast.Values),
		"duration_ms", duration.Milliseconds(),
	)
	return forecast, duration, nil
}

// buildSnapshot clamps the model output for display and derives timestamps
// and free-slot counts.
func (f *LotForecaster) buildSnapshot(ctx context.Context, frame models.FeatureFrame, forecast models.Forecast, generatedAt time.Time) storage.Snapshot {
	values := occupancy.ClampAll(forecast.Values)

	var first, last time.Time
	if ts, ok := frame.Rows[0]["timestamp"]; ok {
		first = time.Unix(int64(ts), 0).UTC()
	}
	last, _ = features.LastTimestamp(frame)

	snapshot := storage.Snapshot{
		ID:            uuid.NewString(),
		Lot:           f.lot,
		Model:         f.model.Name(),
		GeneratedAt:   generatedAt.UTC(),
		StepSeconds:   int(f.plan.Step.Seconds()),
		HistoryStart:  first,
		LastObserved:  last,
		History:       features.Values(frame),
		Fitted:        occupancy.ClampAll(forecast.Fitted),
		Forecast:      values,
		ForecastTimes: occupancy.Timestamps(last, f.plan.Step, len(values)),
		FreeSlots:     occupancy.FreeSlots(values, f.plan.TotalSlots, f.plan.Rounding),
		Fit:           forecast.Fit,
	}
	if m, ok := f.model.(interface{ Params() models.HoltWintersParams }); ok {
		snapshot.SeasonLength = m.Params().SeasonLength
	}

	if rate, ok := f.liveRate(ctx); ok {
		snapshot.CurrentRate = &rate
	}
	return snapshot
}

// liveRate samples the slot feed. Failures are logged and leave the
// snapshot without a live reading.
func (f *LotForecaster) liveRate(ctx context.Context) (float64, bool) {
	if f.plan.Live == nil {
		return 0, false
	}

	counts, err := f.plan.Live.Counts(ctx)
	if err != nil {
		f.recordError("live", "counts_failed")
		f.logger.Warn("live slot status unavailable", "error", err)
		return 0, false
	}

	rate, ok := occupancy.Rate(counts.Occupied, counts.Vacant)
	if !ok {
		f.logger.Debug("live slot status has no known slots", "unknown", counts.Unknown)
		return 0, false
	}
	if f.metrics != nil {
		f.metrics.SetCurrentRate(rate)
	}
	return rate, true
}

func (f *LotForecaster) recordError(component, reason string) {
	if f.metrics != nil {
		f.metrics.RecordError(component, reason)
	}
}

// Package models provides the occupancy forecasting model.
//
// The core is HoltWintersAdditive, a one-shot additive Holt-Winters pass over
// an hourly series. HoltWintersModel adapts it to the Model interface used by
// the forecast loop.
package models

import "context"

// FeatureFrame is the model input: one row per historical step, ordered by time.
// Rows carry at least "value"; the feature builder also sets "timestamp" and "hour".
type FeatureFrame struct {
	Rows []map[string]float64
}

// Forecast is the output of a model run.
type Forecast struct {
	Metric string

	// Values holds one prediction per future step.
	Values []float64

	// Fitted holds the one-step-ahead reconstruction of every history row.
	Fitted []float64

	StepSec int

	// Horizon is the number of future steps in Values.
	Horizon int

	Fit FitStats
}

// Model produces a forecast from a history frame.
// Implementations must not keep state between calls.
type Model interface {
	Name() string
	Predict(ctx context.Context, history FeatureFrame) (Forecast, error)
}

package models

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FitStats summarizes how well the fitted series tracks the history.
type FitStats struct {
	MAE     float64 `json:"mae"`
	RMSE    float64 `json:"rmse"`
	Bias    float64 `json:"bias"`
	Samples int     `json:"samples"`
}

// ComputeFitStats compares actual and fitted, skipping the first warmup points
// while the seasonal estimates settle. Residuals are actual - fitted.
// Returns the zero value when nothing is left to compare.
func ComputeFitStats(actual, fitted []float64, warmup int) FitStats {
	n := min(len(actual), len(fitted))
	if warmup < 0 {
		warmup = 0
	}
	if warmup >= n {
		return FitStats{}
	}

	residuals := make([]float64, n-warmup)
	floats.SubTo(residuals, actual[warmup:n], fitted[warmup:n])

	abs := make([]float64, len(residuals))
	for i, r := range residuals {
		abs[i] = math.Abs(r)
	}

	return FitStats{
		MAE:     stat.Mean(abs, nil),
		RMSE:    math.Sqrt(floats.Dot(residuals, residuals) / float64(len(residuals))),
		Bias:    stat.Mean(residuals, nil),
		Samples: len(residuals),
	}
}

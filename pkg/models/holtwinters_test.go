package models

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

func constantSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func params(L int, alpha, beta, gamma float64, h int) HoltWintersParams {
	return HoltWintersParams{SeasonLength: L, Alpha: alpha, Beta: beta, Gamma: gamma, Horizon: h}
}

func TestHoltWintersAdditive_Constant(t *testing.T) {
	fitted, forecast, err := HoltWintersAdditive(constantSeries(48, 0.5), params(24, 0.3, 0.1, 0.3, 30))
	require.NoError(t, err)
	require.Len(t, fitted, 48)
	require.Len(t, forecast, 30)

	for i, v := range fitted {
		assert.InDelta(t, 0.5, v, tolerance, "fitted[%d]", i)
	}
	for i, v := range forecast {
		assert.InDelta(t, 0.5, v, tolerance, "forecast[%d]", i)
	}
}

// TestHoltWintersAdditive_Golden pins the output on a small series.
// The trend starts at the difference of the two cycle means (0.4 - 0.2 = 0.2)
// without dividing by the season length, so fitted[0] is
// level(0.3) + trend(0.2) + season[0](-0.1) = 0.4. The textbook per-step
// trend of 0.05 would give 0.25. This deviation is intentional.
func TestHoltWintersAdditive_Golden(t *testing.T) {
	history := []float64{0.1, 0.2, 0.3, 0.2, 0.3, 0.4, 0.5, 0.4}

	fitted, forecast, err := HoltWintersAdditive(history, params(4, 0.5, 0.5, 0.5, 6))
	require.NoError(t, err)

	wantFitted := []float64{0.4, 0.475, 0.49375, 0.3046875, 0.058984375, 0.32763671875, 0.5441162109375, 0.4932800292968751}
	wantForecast := []float64{0.38370208740234374, 0.47342529296875, 0.5902542114257813, 0.5258651733398437, 0.4862472534179687, 0.575970458984375}

	require.Len(t, fitted, len(wantFitted))
	require.Len(t, forecast, len(wantForecast))
	for i := range wantFitted {
		assert.InDelta(t, wantFitted[i], fitted[i], tolerance, "fitted[%d]", i)
	}
	for i := range wantForecast {
		assert.InDelta(t, wantForecast[i], forecast[i], tolerance, "forecast[%d]", i)
	}
}

func TestHoltWintersAdditive_PeriodicConverges(t *testing.T) {
	const L = 24
	const base = 0.5
	pattern := make([]float64, L)
	for i := range pattern {
		pattern[i] = 0.2*math.Cos(2*math.Pi*float64(i)/L) + 0.05*float64(i%3)
	}

	cycles := 40
	history := make([]float64, L*cycles)
	for t := range history {
		history[t] = base + pattern[t%L]
	}

	fitted, forecast, err := HoltWintersAdditive(history, params(L, 0.3, 0.1, 0.3, 2*L))
	require.NoError(t, err)

	firstCycleErr, lastCycleErr := 0.0, 0.0
	for i := 0; i < L; i++ {
		firstCycleErr = math.Max(firstCycleErr, math.Abs(fitted[i]-history[i]))
		j := len(history) - L + i
		lastCycleErr = math.Max(lastCycleErr, math.Abs(fitted[j]-history[j]))
	}
	assert.Less(t, lastCycleErr, firstCycleErr, "fit should improve as the model settles")
	assert.Less(t, lastCycleErr, 0.01)

	for k, v := range forecast {
		want := base + pattern[(len(history)+k)%L]
		assert.InDelta(t, want, v, 0.01, "forecast[%d]", k)
	}
}

func TestHoltWintersAdditive_LevelShift(t *testing.T) {
	history := append(constantSeries(24, 0.2), constantSeries(24, 0.8)...)

	for _, s := range []float64{0.3, 0.5, 0.9} {
		_, forecast, err := HoltWintersAdditive(history, params(24, s, s, s, 24))
		require.NoError(t, err)

		sum := 0.0
		for k, v := range forecast {
			assert.Greater(t, v, 0.5, "smoothing=%v forecast[%d] stayed near the first season", s, k)
			sum += v
		}
		assert.InDelta(t, 0.8, sum/float64(len(forecast)), 0.15, "smoothing=%v", s)
	}
}

func TestHoltWintersAdditive_HistoryLength(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{name: "one short of two seasons", n: 47, wantErr: true},
		{name: "exactly two seasons", n: 48, wantErr: false},
		{name: "empty", n: 0, wantErr: true},
		{name: "long history", n: 24 * 14, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fitted, forecast, err := HoltWintersAdditive(constantSeries(tt.n, 0.4), params(24, 0.3, 0.1, 0.3, 24))
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Len(t, fitted, tt.n)
				assert.Len(t, forecast, 24)
				return
			}

			var pe *PreconditionError
			require.True(t, errors.As(err, &pe), "want PreconditionError, got %v", err)
			assert.Equal(t, tt.n, pe.Have)
			assert.Equal(t, 48, pe.Need)
			assert.Nil(t, fitted)
			assert.Nil(t, forecast)
		})
	}
}

func TestHoltWintersAdditive_HugeSeasonLength(t *testing.T) {
	tests := []struct {
		name     string
		season   int
		wantNeed int
	}{
		{name: "double overflows", season: 1 << 62, wantNeed: math.MaxInt},
		{name: "max int", season: math.MaxInt, wantNeed: math.MaxInt},
		{name: "longer than history", season: 25, wantNeed: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fitted, forecast []float64
			var err error
			require.NotPanics(t, func() {
				fitted, forecast, err = HoltWintersAdditive(constantSeries(48, 0.4), params(tt.season, 0.3, 0.1, 0.3, 24))
			})

			var pe *PreconditionError
			require.True(t, errors.As(err, &pe), "want PreconditionError, got %v", err)
			assert.Equal(t, 48, pe.Have)
			assert.Equal(t, tt.wantNeed, pe.Need)
			assert.Nil(t, fitted)
			assert.Nil(t, forecast)
		})
	}
}

func TestHoltWintersAdditive_InvalidParams(t *testing.T) {
	history := constantSeries(48, 0.5)

	tests := []struct {
		name      string
		params    HoltWintersParams
		wantParam string
	}{
		{name: "zero season", params: params(0, 0.3, 0.1, 0.3, 24), wantParam: "seasonLength"},
		{name: "negative season", params: params(-24, 0.3, 0.1, 0.3, 24), wantParam: "seasonLength"},
		{name: "negative horizon", params: params(24, 0.3, 0.1, 0.3, -1), wantParam: "horizon"},
		{name: "alpha zero", params: params(24, 0, 0.1, 0.3, 24), wantParam: "alpha"},
		{name: "alpha one", params: params(24, 1, 0.1, 0.3, 24), wantParam: "alpha"},
		{name: "beta negative", params: params(24, 0.3, -0.1, 0.3, 24), wantParam: "beta"},
		{name: "gamma above one", params: params(24, 0.3, 0.1, 1.5, 24), wantParam: "gamma"},
		{name: "alpha NaN", params: params(24, math.NaN(), 0.1, 0.3, 24), wantParam: "alpha"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fitted, forecast, err := HoltWintersAdditive(history, tt.params)

			var ipe *InvalidParameterError
			require.True(t, errors.As(err, &ipe), "want InvalidParameterError, got %v", err)
			assert.Equal(t, tt.wantParam, ipe.Param)
			assert.Nil(t, fitted)
			assert.Nil(t, forecast)
		})
	}
}

func TestHoltWintersAdditive_InvalidParamsCheckedBeforeLength(t *testing.T) {
	_, _, err := HoltWintersAdditive([]float64{0.1}, params(24, 2, 0.1, 0.3, 24))

	var ipe *InvalidParameterError
	assert.True(t, errors.As(err, &ipe), "want InvalidParameterError, got %v", err)
}

func TestHoltWintersAdditive_ZeroHorizon(t *testing.T) {
	fitted, forecast, err := HoltWintersAdditive(constantSeries(48, 0.5), params(24, 0.3, 0.1, 0.3, 0))
	require.NoError(t, err)
	assert.Len(t, fitted, 48)
	assert.NotNil(t, forecast)
	assert.Empty(t, forecast)
}

func TestHoltWintersAdditive_HorizonBeyondSeason(t *testing.T) {
	const L = 4
	history := []float64{0.1, 0.5, 0.3, 0.7, 0.1, 0.5, 0.3, 0.7, 0.1, 0.5, 0.3, 0.7}

	_, forecast, err := HoltWintersAdditive(history, params(L, 0.3, 0.1, 0.3, 3*L))
	require.NoError(t, err)
	require.Len(t, forecast, 3*L)

	// Steps one season apart share a seasonal offset, so they differ by L*trend.
	shift := forecast[L] - forecast[0]
	for k := 0; k+L < len(forecast); k++ {
		assert.InDelta(t, shift, forecast[k+L]-forecast[k], tolerance, "k=%d", k)
	}
}

func TestHoltWintersAdditive_Deterministic(t *testing.T) {
	history := make([]float64, 24*5)
	for i := range history {
		history[i] = 0.4 + 0.3*math.Sin(float64(i)/3) + 0.01*float64(i%7)
	}
	p := DefaultHoltWintersParams()

	f1, p1, err := HoltWintersAdditive(history, p)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f2, p2, err := HoltWintersAdditive(history, p)
			assert.NoError(t, err)
			assert.Equal(t, f1, f2)
			assert.Equal(t, p1, p2)
		}()
	}
	wg.Wait()
}

func TestHoltWintersAdditive_DoesNotMutateHistory(t *testing.T) {
	history := []float64{0.1, 0.2, 0.3, 0.2, 0.3, 0.4, 0.5, 0.4}
	orig := append([]float64(nil), history...)

	_, _, err := HoltWintersAdditive(history, params(4, 0.5, 0.5, 0.5, 4))
	require.NoError(t, err)
	assert.Equal(t, orig, history)
}

func TestHoltWintersAdditive_NoClamping(t *testing.T) {
	// A steep ramp extrapolates beyond [0,1]; clamping is the caller's job.
	history := make([]float64, 48)
	for i := range history {
		history[i] = 0.02 * float64(i)
	}
	_, forecast, err := HoltWintersAdditive(history, params(24, 0.3, 0.1, 0.3, 24))
	require.NoError(t, err)

	exceeded := false
	for _, v := range forecast {
		if v > 1 {
			exceeded = true
		}
	}
	assert.True(t, exceeded, "expected unclamped forecast above 1, got %v", forecast)
}

func TestNewHoltWintersModel(t *testing.T) {
	_, err := NewHoltWintersModel("", 3600, DefaultHoltWintersParams())
	assert.Error(t, err)

	_, err = NewHoltWintersModel("occupancy_rate", 0, DefaultHoltWintersParams())
	assert.Error(t, err)

	bad := DefaultHoltWintersParams()
	bad.Gamma = 0
	_, err = NewHoltWintersModel("occupancy_rate", 3600, bad)
	var ipe *InvalidParameterError
	assert.True(t, errors.As(err, &ipe))

	m, err := NewHoltWintersModel("occupancy_rate", 3600, DefaultHoltWintersParams())
	require.NoError(t, err)
	assert.Equal(t, "holtwinters(24)", m.Name())
}

func TestHoltWintersModel_Predict(t *testing.T) {
	m, err := NewHoltWintersModel("occupancy_rate", 3600, DefaultHoltWintersParams())
	require.NoError(t, err)

	frame := makeFeatureFrame(constantSeries(72, 0.25))
	fc, err := m.Predict(context.Background(), frame)
	require.NoError(t, err)

	assert.Equal(t, "occupancy_rate", fc.Metric)
	assert.Equal(t, 3600, fc.StepSec)
	assert.Equal(t, 24, fc.Horizon)
	assert.Len(t, fc.Values, 24)
	assert.Len(t, fc.Fitted, 72)
	assert.Equal(t, 48, fc.Fit.Samples)
	assert.InDelta(t, 0, fc.Fit.RMSE, tolerance)
}

func TestHoltWintersModel_Predict_Errors(t *testing.T) {
	m, err := NewHoltWintersModel("occupancy_rate", 3600, DefaultHoltWintersParams())
	require.NoError(t, err)

	t.Run("missing value", func(t *testing.T) {
		frame := makeFeatureFrame(constantSeries(48, 0.5))
		delete(frame.Rows[10], "value")
		_, err := m.Predict(context.Background(), frame)
		assert.ErrorContains(t, err, "row 10")
	})

	t.Run("short history", func(t *testing.T) {
		_, err := m.Predict(context.Background(), makeFeatureFrame(constantSeries(30, 0.5)))
		var pe *PreconditionError
		assert.True(t, errors.As(err, &pe))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := m.Predict(ctx, makeFeatureFrame(constantSeries(48, 0.5)))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func makeFeatureFrame(values []float64) FeatureFrame {
	rows := make([]map[string]float64, len(values))
	for i, v := range values {
		rows[i] = map[string]float64{
			"value":     v,
			"timestamp": float64(1700000000 + i*3600),
			"hour":      float64(i % 24),
		}
	}
	return FeatureFrame{Rows: rows}
}

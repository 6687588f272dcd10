package models

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Default smoothing configuration for hourly occupancy data with a daily cycle.
const (
	DefaultSeasonLength = 24
	DefaultAlpha        = 0.3
	DefaultBeta         = 0.1
	DefaultGamma        = 0.3
	DefaultHorizon      = 24
)

// MaxHorizon bounds the horizon callers accept from requests and lot config.
// HoltWintersAdditive itself allocates whatever it is asked for.
const MaxHorizon = 24 * 366

// CheckHorizon returns an *InvalidParameterError if p.Horizon exceeds MaxHorizon.
func (p HoltWintersParams) CheckHorizon() error {
	if p.Horizon > MaxHorizon {
		return &InvalidParameterError{Param: "horizon", Value: float64(p.Horizon), Reason: fmt.Sprintf("must be <= %d", MaxHorizon)}
	}
	return nil
}

// HoltWintersParams configures a single Holt-Winters run.
type HoltWintersParams struct {
	// SeasonLength is the number of steps in one seasonal cycle (24 for hourly data).
	SeasonLength int `json:"seasonLength"`

	// Alpha, Beta and Gamma smooth level, trend and season. Each must be in (0,1).
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`

	// Horizon is the number of future steps to extrapolate. Zero yields an empty forecast.
	Horizon int `json:"horizon"`
}

// DefaultHoltWintersParams returns the parameters used by the occupancy dashboard.
func DefaultHoltWintersParams() HoltWintersParams {
	return HoltWintersParams{
		SeasonLength: DefaultSeasonLength,
		Alpha:        DefaultAlpha,
		Beta:         DefaultBeta,
		Gamma:        DefaultGamma,
		Horizon:      DefaultHorizon,
	}
}

// Validate checks parameter ranges. It does not look at the history.
func (p HoltWintersParams) Validate() error {
	if p.SeasonLength <= 0 {
		return &InvalidParameterError{Param: "seasonLength", Value: float64(p.SeasonLength), Reason: "must be > 0"}
	}
	if p.Horizon < 0 {
		return &InvalidParameterError{Param: "horizon", Value: float64(p.Horizon), Reason: "must be >= 0"}
	}
	for _, c := range []struct {
		name string
		v    float64
	}{{"alpha", p.Alpha}, {"beta", p.Beta}, {"gamma", p.Gamma}} {
		// Written as a negated range test so NaN is rejected too.
		if !(c.v > 0 && c.v < 1) {
			return &InvalidParameterError{Param: c.name, Value: c.v, Reason: "must be in (0,1)"}
		}
	}
	return nil
}

// MinHistory returns the shortest history accepted for these parameters.
// It saturates at math.MaxInt for season lengths whose double overflows.
func (p HoltWintersParams) MinHistory() int {
	if p.SeasonLength > math.MaxInt/2 {
		return math.MaxInt
	}
	return 2 * p.SeasonLength
}

// enoughHistory reports whether n observations cover two full seasons.
func (p HoltWintersParams) enoughHistory(n int) bool {
	return p.SeasonLength <= n/2
}

// hwState is the level/trend/season triple carried through the recursion.
// It is created per call and never escapes HoltWintersAdditive.
type hwState struct {
	level  float64
	trend  float64
	season []float64
}

// initState bootstraps the state from the first two seasonal cycles.
//
// The level starts at the first observation of the second cycle, and the trend
// is the difference of the two cycle means used directly as a per-step trend.
// Textbook initialization divides that delta by the season length; this one
// does not, and downstream charts rely on the resulting forecast shape.
func initState(y []float64, L int) hwState {
	meanCycle1 := stat.Mean(y[:L], nil)
	meanCycle2 := stat.Mean(y[L:2*L], nil)

	season := make([]float64, L)
	for i := range L {
		season[i] = y[i] - meanCycle1
	}

	return hwState{
		level:  y[L],
		trend:  meanCycle2 - meanCycle1,
		season: season,
	}
}

// update consumes observation y at step t and returns the fitted value,
// computed from the state as it was before y was seen.
func (s *hwState) update(y float64, t int, p HoltWintersParams) float64 {
	idx := t % p.SeasonLength
	prevLevel, prevTrend, prevSeason := s.level, s.trend, s.season[idx]

	fitted := prevLevel + prevTrend + prevSeason

	s.level = p.Alpha*(y-prevSeason) + (1-p.Alpha)*(prevLevel+prevTrend)
	s.trend = p.Beta*(s.level-prevLevel) + (1-p.Beta)*prevTrend
	s.season[idx] = p.Gamma*(y-s.level) + (1-p.Gamma)*prevSeason

	return fitted
}

// extrapolate returns the k-step-ahead value (k >= 1) after n observations.
func (s *hwState) extrapolate(n, k int) float64 {
	L := len(s.season)
	return s.level + float64(k)*s.trend + s.season[(n+k-1)%L]
}

// HoltWintersAdditive runs additive Holt-Winters triple exponential smoothing
// over history and returns the one-step-ahead fitted values (one per input)
// and a forecast of p.Horizon future steps.
//
// Parameters are validated first, then the history length. Errors are
// *InvalidParameterError or *PreconditionError and no output is returned with
// them. Values are not clamped. The function holds no state between calls
// and is safe for concurrent use.
func HoltWintersAdditive(history []float64, p HoltWintersParams) (fitted, forecast []float64, err error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	if !p.enoughHistory(len(history)) {
		return nil, nil, &PreconditionError{Have: len(history), Need: p.MinHistory(), SeasonLength: p.SeasonLength}
	}

	state := initState(history, p.SeasonLength)

	fitted = make([]float64, len(history))
	for t, y := range history {
		fitted[t] = state.update(y, t, p)
	}

	forecast = make([]float64, p.Horizon)
	for k := 1; k <= p.Horizon; k++ {
		forecast[k-1] = state.extrapolate(len(history), k)
	}

	return fitted, forecast, nil
}

// HoltWintersModel implements Model on top of HoltWintersAdditive.
// It is stateless: every Predict call recomputes from the supplied history.
type HoltWintersModel struct {
	metric  string
	stepSec int
	params  HoltWintersParams
}

// NewHoltWintersModel creates a Holt-Winters model.
// Returns an error if params are out of range.
func NewHoltWintersModel(metric string, stepSec int, params HoltWintersParams) (*HoltWintersModel, error) {
	if metric == "" {
		return nil, fmt.Errorf("metric cannot be empty")
	}
	if stepSec <= 0 {
		return nil, fmt.Errorf("stepSec must be > 0")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &HoltWintersModel{metric: metric, stepSec: stepSec, params: params}, nil
}

// Name returns the model identifier including its seasonal period.
func (m *HoltWintersModel) Name() string {
	return fmt.Sprintf("holtwinters(%d)", m.params.SeasonLength)
}

// Params returns the configured parameters.
func (m *HoltWintersModel) Params() HoltWintersParams {
	return m.params
}

// Predict fits the model to the "value" column of history and extrapolates
// Horizon steps. Every row must carry a value.
func (m *HoltWintersModel) Predict(ctx context.Context, history FeatureFrame) (Forecast, error) {
	if ctx.Err() != nil {
		return Forecast{}, ctx.Err()
	}

	values := make([]float64, len(history.Rows))
	for i, row := range history.Rows {
		v, ok := row["value"]
		if !ok {
			return Forecast{}, fmt.Errorf("row %d missing 'value' field", i)
		}
		values[i] = v
	}

	fitted, forecast, err := HoltWintersAdditive(values, m.params)
	if err != nil {
		return Forecast{}, err
	}

	return Forecast{
		Metric:  m.metric,
		Values:  forecast,
		Fitted:  fitted,
		StepSec: m.stepSec,
		Horizon: m.params.Horizon,
		Fit:     ComputeFitStats(values, fitted, m.params.SeasonLength),
	}, nil
}

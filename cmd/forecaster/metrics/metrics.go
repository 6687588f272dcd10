// Package metrics provides Prometheus instrumentation for the forecast loop.
//
// Metrics exposed, each with a constant "lot" label:
//   - parkcast_adapter_collect_seconds: history collection duration
//   - parkcast_model_predict_seconds: Holt-Winters run duration
//   - parkcast_history_points: length of the series fed to the model
//   - parkcast_predicted_occupancy_rate: forecast for the next step
//   - parkcast_current_occupancy_rate: live reading from the slot feed
//   - parkcast_fit_mae / parkcast_fit_rmse: in-sample one-step-ahead error
//   - parkcast_last_success_timestamp_seconds: time of the last stored snapshot
//   - parkcast_errors_total: errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/parkcast/pkg/models"
)

// Metrics holds the Prometheus collectors of one lot.
type Metrics struct {
	AdapterCollectSeconds prometheus.Histogram
	ModelPredictSeconds   prometheus.Histogram
	HistoryPoints         prometheus.Gauge
	PredictedRate         prometheus.Gauge
	CurrentRate           prometheus.Gauge
	FitMAE                prometheus.Gauge
	FitRMSE               prometheus.Gauge
	LastSuccess           prometheus.Gauge
	ErrorsTotal           *prometheus.CounterVec
}

// New registers the metrics of lot with the default registry.
func New(lot string) *Metrics {
	return NewWithRegistry(lot, prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics of lot with reg.
// Registering the same lot twice on one registry panics.
func NewWithRegistry(lot string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"lot": lot}

	return &Metrics{
		AdapterCollectSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "parkcast_adapter_collect_seconds",
			Help:        "Time spent collecting occupancy history from the adapter",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		ModelPredictSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "parkcast_model_predict_seconds",
			Help:        "Time spent fitting and extrapolating the model",
			ConstLabels: labels,
			Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),

		HistoryPoints: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "parkcast_history_points",
			Help:        "Number of hourly points fed to the model",
			ConstLabels: labels,
		}),

		PredictedRate: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "parkcast_predicted_occupancy_rate",
			Help:        "Forecast occupancy rate for the next step, clamped to [0,1]",
			ConstLabels: labels,
		}),

		CurrentRate: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "parkcast_current_occupancy_rate",
			Help:        "Live occupancy rate from the slot status feed",
			ConstLabels: labels,
		}),

		FitMAE: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "parkcast_fit_mae",
			Help:        "Mean absolute one-step-ahead error over the history after warm-up",
			ConstLabels: labels,
		}),

		FitRMSE: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "parkcast_fit_rmse",
			Help:        "Root mean squared one-step-ahead error over the history after warm-up",
			ConstLabels: labels,
		}),

		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "parkcast_last_success_timestamp_seconds",
			Help:        "Unix time of the last stored snapshot",
			ConstLabels: labels,
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "parkcast_errors_total",
			Help:        "Total number of errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

// RecordCollect records the time spent collecting history.
func (m *Metrics) RecordCollect(seconds float64) {
	m.AdapterCollectSeconds.Observe(seconds)
}

// RecordPredict records the time spent predicting.
func (m *Metrics) RecordPredict(seconds float64) {
	m.ModelPredictSeconds.Observe(seconds)
}

// RecordForecast updates the gauges describing a stored forecast.
func (m *Metrics) RecordForecast(historyPoints int, nextRate float64, fit models.FitStats) {
	m.HistoryPoints.Set(float64(historyPoints))
	m.PredictedRate.Set(nextRate)
	m.FitMAE.Set(fit.MAE)
	m.FitRMSE.Set(fit.RMSE)
	m.LastSuccess.SetToCurrentTime()
}

// SetCurrentRate sets the live occupancy rate.
func (m *Metrics) SetCurrentRate(rate float64) {
	m.CurrentRate.Set(rate)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// Package models builds the forecasting model of a lot from its configuration.
package models

import (
	"log/slog"

	"github.com/HatiCode/parkcast/cmd/forecaster/config"
	"github.com/HatiCode/parkcast/pkg/models"
)

// Metric is the series name carried by every forecast.
const Metric = "occupancy_rate"

// New creates the Holt-Winters model for lc.
func New(lc config.LotConfig, logger *slog.Logger) (models.Model, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := lc.Params()
	m, err := models.NewHoltWintersModel(Metric, int(lc.Step.Seconds()), p)
	if err != nil {
		return nil, err
	}

	logger.Info("initialized Holt-Winters model",
		"lot", lc.Name,
		"season_length", p.SeasonLength,
		"alpha", p.Alpha,
		"beta", p.Beta,
		"gamma", p.Gamma,
		"horizon", p.Horizon,
	)
	return m, nil
}

// Package storage keeps the latest forecast snapshot per parking lot.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/HatiCode/parkcast/pkg/models"
)

// Snapshot is the result of one forecast run for a lot, in the shape the
// dashboard renders. History, Fitted and Forecast are clamped to [0,1].
type Snapshot struct {
	ID           string    `json:"id"`
	Lot          string    `json:"lot"`
	Model        string    `json:"model"`
	GeneratedAt  time.Time `json:"generatedAt"`
	StepSeconds  int       `json:"stepSeconds"`
	SeasonLength int       `json:"seasonLength"`

	HistoryStart time.Time `json:"historyStart"`
	LastObserved time.Time `json:"lastObserved"`
	History      []float64 `json:"history"`
	Fitted       []float64 `json:"fitted"`

	Forecast      []float64   `json:"forecast"`
	ForecastTimes []time.Time `json:"forecastTimes"`

	// FreeSlots is the expected number of vacant slots per forecast step.
	// Empty when the lot size is not configured.
	FreeSlots []int `json:"freeSlots,omitempty"`

	// CurrentRate is the live occupancy reading taken with the forecast,
	// if the lot has a slot status feed.
	CurrentRate *float64 `json:"currentRate,omitempty"`

	Fit models.FitStats `json:"fit"`
}

// Store persists snapshots. Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, lot string) (Snapshot, bool, error)
}

var lotNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// ValidateLotName checks that name is 1-253 alphanumeric characters with
// inner dashes or underscores. Lot names end up in cache keys and URLs.
func ValidateLotName(name string) error {
	if name == "" {
		return fmt.Errorf("lot name required")
	}
	if !lotNameRegex.MatchString(name) {
		return fmt.Errorf("invalid lot name %q: only alphanumeric, hyphens, and underscores allowed", name)
	}
	return nil
}

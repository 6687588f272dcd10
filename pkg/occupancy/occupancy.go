// Package occupancy converts occupancy-rate forecasts into values the dashboard
// can display: rates clamped to [0,1], forecast timestamps and expected free
// slot counts.
package occupancy

import (
	"math"
	"time"
)

// Slot status values reported by the lot sensors.
const (
	StatusOccupied = "occupied"
	StatusVacant   = "vacant"
	StatusUnknown  = "unknown"
)

// Rounding modes for FreeSlots.
const (
	RoundFloor   = "floor"
	RoundNearest = "round"
	RoundCeil    = "ceil"
)

// Clamp limits v to [0,1]. NaN maps to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampAll returns a clamped copy of vs.
func ClampAll(vs []float64) []float64 {
	if vs == nil {
		return nil
	}
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = Clamp(v)
	}
	return out
}

// Rate returns occupied / (occupied + vacant), or false when no slot is known.
func Rate(occupied, vacant int) (float64, bool) {
	total := occupied + vacant
	if total <= 0 || occupied < 0 || vacant < 0 {
		return 0, false
	}
	return float64(occupied) / float64(total), true
}

// Timestamps returns last + k*step for k = 1..horizon.
func Timestamps(last time.Time, step time.Duration, horizon int) []time.Time {
	if horizon <= 0 {
		return []time.Time{}
	}
	out := make([]time.Time, horizon)
	for k := 1; k <= horizon; k++ {
		out[k-1] = last.Add(time.Duration(k) * step)
	}
	return out
}

// FreeSlots converts forecast rates into expected vacant slot counts for a lot
// with totalSlots spaces. Rates are clamped before conversion.
//
// rounding is one of the Round* modes; anything else rounds down.
func FreeSlots(rates []float64, totalSlots int, rounding string) []int {
	if len(rates) == 0 || totalSlots <= 0 {
		return nil
	}
	out := make([]int, len(rates))
	for i, r := range rates {
		free := float64(totalSlots) * (1 - Clamp(r))
		out[i] = clampSlots(roundSlots(free, rounding), totalSlots)
	}
	return out
}

func roundSlots(x float64, mode string) int {
	switch mode {
	case RoundCeil:
		return int(math.Ceil(x))
	case RoundNearest:
		return int(math.Round(x))
	default:
		return int(math.Floor(x))
	}
}

func clampSlots(x, total int) int {
	if x < 0 {
		return 0
	}
	if x > total {
		return total
	}
	return x
}

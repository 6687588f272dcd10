// Package features turns adapter output into a clean, gap-free model input.
//
// The Holt-Winters model assumes one value per step with no holes and no
// non-numeric entries. The Builder enforces that before the model runs:
//
//	parse → sort → align to step → dedupe → fill short gaps → clamp
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/HatiCode/parkcast/pkg/adapters"
	"github.com/HatiCode/parkcast/pkg/models"
	"github.com/HatiCode/parkcast/pkg/occupancy"
)

// ErrEmpty is returned when the frame contains no rows.
var ErrEmpty = errors.New("features: no rows")

// Builder converts DataFrames into FeatureFrames.
type Builder struct {
	// Step is the spacing of the output series. Defaults to one hour.
	Step time.Duration

	// MaxGapSteps is the longest run of missing steps that is forward-filled.
	// Longer gaps fail the build. Zero disables filling.
	MaxGapSteps int

	// Clamp limits values to [0,1] before they reach the model.
	Clamp bool
}

// NewBuilder returns a Builder for hourly occupancy rates.
func NewBuilder() *Builder {
	return &Builder{
		Step:        time.Hour,
		MaxGapSteps: 3,
		Clamp:       true,
	}
}

type point struct {
	ts  time.Time
	val float64
}

// BuildFeatures produces rows {"timestamp", "value", "hour"}, one per step,
// from the first to the last observed bucket. When several observations share
// a bucket the latest wins.
func (b *Builder) BuildFeatures(df adapters.DataFrame) (models.FeatureFrame, error) {
	if len(df.Rows) == 0 {
		return models.FeatureFrame{}, ErrEmpty
	}

	step := b.Step
	if step <= 0 {
		step = time.Hour
	}

	points := make([]point, 0, len(df.Rows))
	for i, row := range df.Rows {
		p, err := parseRow(row)
		if err != nil {
			return models.FeatureFrame{}, fmt.Errorf("row %d: %w", i, err)
		}
		p.ts = p.ts.Truncate(step)
		points = append(points, p)
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].ts.Before(points[j].ts) })

	deduped := points[:0]
	for _, p := range points {
		if n := len(deduped); n > 0 && deduped[n-1].ts.Equal(p.ts) {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}

	filled := make([]point, 0, len(deduped))
	for i, p := range deduped {
		if i > 0 {
			prev := filled[len(filled)-1]
			missing := int(p.ts.Sub(prev.ts)/step) - 1
			if missing > b.MaxGapSteps {
				return models.FeatureFrame{}, fmt.Errorf("gap of %d steps after %s exceeds limit of %d",
					missing, prev.ts.Format(time.RFC3339), b.MaxGapSteps)
			}
			for k := 1; k <= missing; k++ {
				filled = append(filled, point{ts: prev.ts.Add(time.Duration(k) * step), val: prev.val})
			}
		}
		filled = append(filled, p)
	}

	rows := make([]map[string]float64, len(filled))
	for i, p := range filled {
		v := p.val
		if b.Clamp {
			v = occupancy.Clamp(v)
		}
		rows[i] = map[string]float64{
			"timestamp": float64(p.ts.Unix()),
			"value":     v,
			"hour":      float64(p.ts.UTC().Hour()),
		}
	}

	return models.FeatureFrame{Rows: rows}, nil
}

func parseRow(row adapters.Row) (point, error) {
	var p point

	switch ts := row["ts"].(type) {
	case string:
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return p, fmt.Errorf("parse ts: %w", err)
		}
		p.ts = t.UTC()
	case time.Time:
		p.ts = ts.UTC()
	case nil:
		return p, errors.New("missing 'ts'")
	default:
		return p, fmt.Errorf("unexpected ts type %T", ts)
	}

	switch v := row["value"].(type) {
	case float64:
		p.val = v
	case int:
		p.val = float64(v)
	case nil:
		return p, errors.New("missing 'value'")
	default:
		return p, fmt.Errorf("unexpected value type %T", v)
	}

	if math.IsNaN(p.val) || math.IsInf(p.val, 0) {
		return p, fmt.Errorf("non-finite value %v", p.val)
	}
	return p, nil
}

// LastTimestamp returns the time of the final row, or false if the frame is empty.
func LastTimestamp(frame models.FeatureFrame) (time.Time, bool) {
	if len(frame.Rows) == 0 {
		return time.Time{}, false
	}
	ts, ok := frame.Rows[len(frame.Rows)-1]["timestamp"]
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(ts), 0).UTC(), true
}

// Values extracts the "value" column.
func Values(frame models.FeatureFrame) []float64 {
	out := make([]float64, len(frame.Rows))
	for i, row := range frame.Rows {
		out[i] = row["value"]
	}
	return out
}

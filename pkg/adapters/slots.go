package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/parkcast/pkg/occupancy"
)

// DefaultStatusPath selects the status of every slot in the live status API,
// which returns [{"slot_id": "A1", "status": "occupied"}, ...].
const DefaultStatusPath = "#.status"

// SlotStatusAdapter reads the live slot list and reports the current occupancy
// rate as a single row. Slots with an unknown status are left out of the rate.
//
// It has no history, so it is used to append the latest observation to a
// series or to sample the lot on a schedule.
type SlotStatusAdapter struct {
	URL string

	// StatusPath is a gjson path selecting an array of status strings.
	StatusPath string

	HTTPClient *http.Client

	// now is overridable in tests.
	now func() time.Time
}

// SlotCounts is the breakdown of one slot list.
type SlotCounts struct {
	Occupied int
	Vacant   int
	Unknown  int
}

// SlotCounter reports the current slot breakdown of a lot.
type SlotCounter interface {
	Counts(ctx context.Context) (SlotCounts, error)
}

// Total returns the number of slots in the list, known or not.
func (c SlotCounts) Total() int {
	return c.Occupied + c.Vacant + c.Unknown
}

func (s *SlotStatusAdapter) Name() string { return "slots" }

// Collect fetches the slot list and returns one row stamped with the current time.
// windowSeconds is ignored.
func (s *SlotStatusAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	counts, err := s.Counts(ctx)
	if err != nil {
		return &DataFrame{}, err
	}

	rate, ok := occupancy.Rate(counts.Occupied, counts.Vacant)
	if !ok {
		return &DataFrame{}, fmt.Errorf("slots adapter: no slot with a known status (%d unknown)", counts.Unknown)
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}

	return &DataFrame{Rows: []Row{{
		"ts":    now().UTC().Truncate(time.Second).Format(time.RFC3339),
		"value": rate,
	}}}, nil
}

// Counts fetches the slot list and tallies statuses.
func (s *SlotStatusAdapter) Counts(ctx context.Context) (SlotCounts, error) {
	if s.URL == "" {
		return SlotCounts{}, errors.New("slots adapter: url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return SlotCounts{}, fmt.Errorf("create request: %w", err)
	}

	body, err := doJSON(defaultClient(s.HTTPClient), req)
	if err != nil {
		return SlotCounts{}, err
	}

	path := orDefault(s.StatusPath, DefaultStatusPath)
	statuses := gjson.GetBytes(body, path)
	if !statuses.Exists() || !statuses.IsArray() {
		return SlotCounts{}, fmt.Errorf("status path %q did not select an array", path)
	}

	var counts SlotCounts
	for _, st := range statuses.Array() {
		switch strings.ToLower(strings.TrimSpace(st.String())) {
		case occupancy.StatusOccupied:
			counts.Occupied++
		case occupancy.StatusVacant:
			counts.Vacant++
		default:
			counts.Unknown++
		}
	}
	return counts, nil
}

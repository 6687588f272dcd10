// Package adapters retrieves occupancy observations from external systems and
// normalizes them into a common DataFrame.
//
// Available adapters:
//   - HTTPAdapter       - the dashboard's hourly series API, or any JSON endpoint, via gjson paths
//   - SlotStatusAdapter - a live slot list; yields the current occupancy rate
//   - PrometheusAdapter - a query_range call against Prometheus or VictoriaMetrics
//
// Adapters only fetch and shape data. Cleaning, alignment and clamping happen
// in the features package.
package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Row is a single observation. Adapters emit {"ts": RFC3339 string, "value": float64}.
type Row map[string]any

// DataFrame holds the rows collected over one window, oldest first.
type DataFrame struct {
	Rows []Row
}

// Adapter is implemented by every data source.
//
// Collect is synchronous and must respect context cancellation and deadlines.
type Adapter interface {
	// Collect fetches observations for the last windowSeconds.
	Collect(ctx context.Context, windowSeconds int) (*DataFrame, error)

	// Name returns a short identifier such as "http" or "slots".
	Name() string
}

// AlignTimestamp truncates ts to a multiple of stepSec.
func AlignTimestamp(ts time.Time, stepSec int) time.Time {
	return ts.Truncate(time.Duration(stepSec) * time.Second)
}

func defaultClient(cli *http.Client) *http.Client {
	if cli != nil {
		return cli
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// doJSON executes req and returns the body of a 200 response.
func doJSON(cli *http.Client, req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

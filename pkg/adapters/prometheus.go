package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// PrometheusAdapter runs a query_range call against Prometheus or any
// Prometheus-compatible server such as VictoriaMetrics. The query should
// return the lot occupancy rate; multiple series are averaged per timestamp.
type PrometheusAdapter struct {
	// ServerURL is the base URL, e.g. http://prometheus:9090 or http://victoria-metrics:8428.
	ServerURL string
	Query     string

	// StepSeconds defaults to 3600 if <= 0.
	StepSeconds int

	HTTPClient *http.Client

	// Flavor names the backend in logs and errors. Defaults to "prometheus".
	Flavor string
}

func (p *PrometheusAdapter) Name() string {
	return orDefault(p.Flavor, "prometheus")
}

// Collect queries the last windowSeconds at StepSeconds resolution.
func (p *PrometheusAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if p.ServerURL == "" || p.Query == "" {
		return &DataFrame{}, fmt.Errorf("%s adapter: ServerURL and Query are required", p.Name())
	}
	step := p.StepSeconds
	if step <= 0 {
		step = 3600
	}
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(now.Unix(), 10))
	q.Set("step", strconv.Itoa(step))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &DataFrame{}, err
	}

	body, err := doJSON(defaultClient(p.HTTPClient), req)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("%s: %w", p.Name(), err)
	}

	var pr RangeResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return &DataFrame{}, fmt.Errorf("decode %s response: %w", p.Name(), err)
	}
	if pr.Status != "success" {
		return &DataFrame{}, fmt.Errorf("%s status: %s", p.Name(), pr.Status)
	}

	rows, err := AverageRangeResult(pr.Data.Result)
	if err != nil {
		return &DataFrame{}, err
	}
	return &DataFrame{Rows: rows}, nil
}

// RangeResponse is the query_range response body.
type RangeResponse struct {
	Status string    `json:"status"`
	Data   RangeData `json:"data"`
}

// RangeData contains the result of a range query.
type RangeData struct {
	ResultType string        `json:"resultType"`
	Result     []RangeSeries `json:"result"`
}

// RangeSeries is one returned series.
type RangeSeries struct {
	Metric map[string]string `json:"metric"`
	// Values holds [ <unix_time_float>, "<value_string>" ] pairs.
	Values [][]any `json:"values"`
}

// AverageRangeResult merges series into rows sorted by time, averaging values
// that share a timestamp. Averaging keeps per-zone rates within [0,1].
func AverageRangeResult(series []RangeSeries) ([]Row, error) {
	type acc struct {
		sum float64
		n   int
	}
	byTS := make(map[int64]*acc)

	for _, s := range series {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}
			tsSec, err := parseSampleTime(pair[0])
			if err != nil {
				return nil, err
			}
			val, err := parseSampleValue(pair[1])
			if err != nil {
				return nil, err
			}
			a, ok := byTS[tsSec]
			if !ok {
				a = &acc{}
				byTS[tsSec] = a
			}
			a.sum += val
			a.n++
		}
	}

	keys := make([]int64, 0, len(byTS))
	for ts := range byTS {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rows := make([]Row, len(keys))
	for i, ts := range keys {
		a := byTS[ts]
		rows[i] = Row{
			"ts":    time.Unix(ts, 0).UTC().Format(time.RFC3339),
			"value": a.sum / float64(a.n),
		}
	}
	return rows, nil
}

func parseSampleTime(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case json.Number:
		f, err := t.Float64()
		return int64(f), err
	default:
		return 0, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

func parseSampleValue(v any) (float64, error) {
	switch vv := v.(type) {
	case string:
		f, err := strconv.ParseFloat(vv, 64)
		if err != nil {
			return 0, fmt.Errorf("parse value: %w", err)
		}
		return f, nil
	case float64:
		return vv, nil
	case json.Number:
		return vv.Float64()
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}

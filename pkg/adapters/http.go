package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// Defaults matching the dashboard's hourly occupancy endpoint, which returns
//
//	{"series": [{"t": 1735689600000, "occupancyRate": 0.42}, ...]}
const (
	DefaultValuePath       = "series.#.occupancyRate"
	DefaultTimestampPath   = "series.#.t"
	DefaultTimestampFormat = "unix_milli"
)

// HTTPAdapter calls a REST endpoint and extracts a time series with gjson paths.
//
// Headers and Body are text templates with the variables {{.WindowSeconds}},
// {{.Start}}, {{.End}}, {{.Step}}, {{.StartRFC3339}}, {{.EndRFC3339}} and any
// TemplateVars. Empty paths and format fall back to the hourly API defaults.
type HTTPAdapter struct {
	URL    string
	Method string

	Headers map[string]string
	Body    string

	// ValuePath and TimestampPath must select arrays of equal length.
	ValuePath     string
	TimestampPath string

	// TimestampFormat is "rfc3339", "unix" or "unix_milli".
	TimestampFormat string

	// StepSeconds defaults to 3600 if <= 0.
	StepSeconds int

	HTTPClient   *http.Client
	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Collect calls the endpoint and returns one row per extracted point, sorted by time.
func (h *HTTPAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if err := h.ValidateConfig(); err != nil {
		return &DataFrame{}, fmt.Errorf("http adapter: %w", err)
	}

	step := h.StepSeconds
	if step <= 0 {
		step = 3600
	}

	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	data := map[string]any{
		"WindowSeconds": windowSeconds,
		"Start":         start.Unix(),
		"End":           now.Unix(),
		"Step":          step,
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		data[k] = v
	}

	req, err := h.newRequest(ctx, data)
	if err != nil {
		return &DataFrame{}, err
	}

	body, err := doJSON(defaultClient(h.HTTPClient), req)
	if err != nil {
		return &DataFrame{}, err
	}

	rows, err := h.extract(body)
	if err != nil {
		return &DataFrame{}, err
	}
	return &DataFrame{Rows: rows}, nil
}

func (h *HTTPAdapter) newRequest(ctx context.Context, data map[string]any) (*http.Request, error) {
	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, data)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		body = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, data)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}
	return req, nil
}

// extract pulls the timestamp and value arrays out of body.
func (h *HTTPAdapter) extract(body []byte) ([]Row, error) {
	valuePath := orDefault(h.ValuePath, DefaultValuePath)
	tsPath := orDefault(h.TimestampPath, DefaultTimestampPath)

	values := gjson.GetBytes(body, valuePath)
	timestamps := gjson.GetBytes(body, tsPath)
	if !values.Exists() {
		return nil, fmt.Errorf("value path %q not found in response", valuePath)
	}
	if !timestamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in response", tsPath)
	}

	valArray := values.Array()
	tsArray := timestamps.Array()
	if len(valArray) != len(tsArray) {
		return nil, fmt.Errorf("value count (%d) != timestamp count (%d)", len(valArray), len(tsArray))
	}

	type point struct {
		ts  time.Time
		val float64
	}
	points := make([]point, 0, len(valArray))
	for i := range valArray {
		if valArray[i].Type != gjson.Number {
			return nil, fmt.Errorf("value[%d] is not a number: %s", i, valArray[i].Raw)
		}
		ts, err := h.parseTimestamp(tsArray[i])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		points = append(points, point{ts: ts, val: valArray[i].Float()})
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].ts.Before(points[j].ts) })

	rows := make([]Row, len(points))
	for i, p := range points {
		rows[i] = Row{"ts": p.ts.Format(time.RFC3339), "value": p.val}
	}
	return rows, nil
}

func (h *HTTPAdapter) parseTimestamp(value gjson.Result) (time.Time, error) {
	switch orDefault(h.TimestampFormat, DefaultTimestampFormat) {
	case "rfc3339":
		ts, err := time.Parse(time.RFC3339, value.String())
		return ts.UTC(), err
	case "unix":
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	case "unix_milli":
		return time.UnixMilli(int64(value.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

// ValidateConfig checks the adapter configuration.
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	switch h.TimestampFormat {
	case "", "rfc3339", "unix", "unix_milli":
		return nil
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
}

func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

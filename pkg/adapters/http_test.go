package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPAdapter_HourlySeriesDefaults(t *testing.T) {
	body := `{
        "series": [
            {"t": 1735696800000, "occupancyRate": 0.61},
            {"t": 1735689600000, "occupancyRate": 0.42},
            {"t": 1735693200000, "occupancyRate": 0.55}
        ]
    }`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected Accept: application/json header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{URL: server.URL}

	df, err := adapter.Collect(context.Background(), 7*24*3600)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(df.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(df.Rows))
	}

	wantTS := []string{"2025-01-01T00:00:00Z", "2025-01-01T01:00:00Z", "2025-01-01T02:00:00Z"}
	wantVal := []float64{0.42, 0.55, 0.61}
	for i, row := range df.Rows {
		if row["ts"] != wantTS[i] {
			t.Errorf("row %d: ts = %v, want %s", i, row["ts"], wantTS[i])
		}
		if v, ok := row["value"].(float64); !ok || v != wantVal[i] {
			t.Errorf("row %d: value = %v, want %v", i, row["value"], wantVal[i])
		}
	}
}

func TestHTTPAdapter_POSTWithTemplates(t *testing.T) {
	var gotBody, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"results": [{"ts": "2025-01-01T00:00:00Z", "rate": 0.3}]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL:             server.URL,
		Method:          http.MethodPost,
		Headers:         map[string]string{"Authorization": "Bearer {{.Token}}"},
		Body:            `{"window": "{{.WindowSeconds}}s", "lot": "{{.Lot}}"}`,
		ValuePath:       "results.#.rate",
		TimestampPath:   "results.#.ts",
		TimestampFormat: "rfc3339",
		TemplateVars:    map[string]string{"Token": "secret", "Lot": "north"},
	}

	df, err := adapter.Collect(context.Background(), 3600)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(df.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(df.Rows))
	}
	if gotBody != `{"window": "3600s", "lot": "north"}` {
		t.Errorf("body = %q", gotBody)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret")
	}
}

func TestHTTPAdapter_UnixTimestamps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"series": [{"t": 1735689600, "occupancyRate": 0.1}]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{URL: server.URL, TimestampFormat: "unix"}
	df, err := adapter.Collect(context.Background(), 3600)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if df.Rows[0]["ts"] != "2025-01-01T00:00:00Z" {
		t.Errorf("ts = %v", df.Rows[0]["ts"])
	}
}

func TestHTTPAdapter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		adapter HTTPAdapter
		wantErr string
	}{
		{
			name:    "http error",
			status:  http.StatusInternalServerError,
			body:    "boom",
			wantErr: "http status 500",
		},
		{
			name:    "missing value path",
			status:  http.StatusOK,
			body:    `{"other": []}`,
			wantErr: "value path",
		},
		{
			name:    "mismatched lengths",
			status:  http.StatusOK,
			body:    `{"series": [{"t": 1, "occupancyRate": 0.1}, {"t": 2}]}`,
			wantErr: "value count (1) != timestamp count (2)",
		},
		{
			name:    "non numeric value",
			status:  http.StatusOK,
			body:    `{"series": [{"t": 1, "occupancyRate": "n/a"}]}`,
			wantErr: "not a number",
		},
		{
			name:    "bad rfc3339",
			status:  http.StatusOK,
			body:    `{"series": [{"t": "yesterday", "occupancyRate": 0.4}]}`,
			adapter: HTTPAdapter{TimestampFormat: "rfc3339"},
			wantErr: "parse timestamp[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			adapter := tt.adapter
			adapter.URL = server.URL
			_, err := adapter.Collect(context.Background(), 3600)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Collect() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPAdapter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		adapter HTTPAdapter
		wantErr bool
	}{
		{name: "defaults", adapter: HTTPAdapter{URL: "http://api"}, wantErr: false},
		{name: "missing url", adapter: HTTPAdapter{}, wantErr: true},
		{name: "bad format", adapter: HTTPAdapter{URL: "http://api", TimestampFormat: "iso"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.adapter.ValidateConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

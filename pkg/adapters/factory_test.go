package adapters

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		config   map[string]string
		wantName string
		wantErr  bool
	}{
		{name: "http defaults", kind: "http", config: map[string]string{"url": "http://api/hourly"}, wantName: "http"},
		{name: "http missing url", kind: "http", config: map[string]string{}, wantErr: true},
		{name: "http bad headers", kind: "http", config: map[string]string{"url": "http://api", "headers": "{"}, wantErr: true},
		{name: "http bad format", kind: "http", config: map[string]string{"url": "http://api", "timestampFormat": "iso"}, wantErr: true},
		{name: "slots", kind: "slots", config: map[string]string{"url": "http://api/status"}, wantName: "slots"},
		{name: "slots missing url", kind: "slots", config: map[string]string{}, wantErr: true},
		{name: "prometheus", kind: "prometheus", config: map[string]string{"query": "up"}, wantName: "prometheus"},
		{name: "prometheus missing query", kind: "prometheus", config: map[string]string{}, wantErr: true},
		{name: "victoriametrics", kind: "victoriametrics", config: map[string]string{"query": "up"}, wantName: "victoriametrics"},
		{name: "unknown", kind: "kafka", config: map[string]string{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.kind, tt.config, 3600)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if a.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", a.Name(), tt.wantName)
			}
		})
	}
}

func TestNew_RangeDefaults(t *testing.T) {
	a, err := New("victoriametrics", map[string]string{"query": "up"}, 3600)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	p := a.(*PrometheusAdapter)
	if p.ServerURL != "http://localhost:8428" {
		t.Errorf("ServerURL = %s, want http://localhost:8428", p.ServerURL)
	}
	if p.StepSeconds != 3600 {
		t.Errorf("StepSeconds = %d, want 3600", p.StepSeconds)
	}
}

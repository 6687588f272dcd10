package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/parkcast/cmd/forecaster/config"
	"github.com/HatiCode/parkcast/cmd/forecaster/metrics"
	"github.com/HatiCode/parkcast/pkg/adapters"
	"github.com/HatiCode/parkcast/pkg/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildAdapter_HTTP(t *testing.T) {
	lc := config.LotConfig{
		Name:          "north-deck",
		Adapter:       "http",
		AdapterConfig: map[string]string{"url": "http://dashboard:5000/api/occupancy/hourly"},
		Step:          time.Hour,
	}

	adapter, err := buildAdapter(lc, discardLogger())
	if err != nil {
		t.Fatalf("buildAdapter failed: %v", err)
	}

	httpAdapter, ok := adapter.(*adapters.HTTPAdapter)
	if !ok {
		t.Fatalf("expected *adapters.HTTPAdapter, got %T", adapter)
	}
	if httpAdapter.StepSeconds != 3600 {
		t.Errorf("StepSeconds = %d, want 3600", httpAdapter.StepSeconds)
	}
}

func TestBuildAdapter_VictoriaMetrics(t *testing.T) {
	lc := config.LotConfig{
		Name:          "visitor",
		Adapter:       "victoriametrics",
		AdapterConfig: map[string]string{"query": "avg(parking_occupancy_rate)"},
		Step:          time.Hour,
	}

	adapter, err := buildAdapter(lc, discardLogger())
	if err != nil {
		t.Fatalf("buildAdapter failed: %v", err)
	}
	if adapter.Name() != "victoriametrics" {
		t.Errorf("Name() = %q, want victoriametrics", adapter.Name())
	}
}

func TestBuildAdapter_Invalid(t *testing.T) {
	tests := []config.LotConfig{
		{Name: "a", Adapter: "http", AdapterConfig: map[string]string{}},
		{Name: "a", Adapter: "prometheus", AdapterConfig: map[string]string{}},
		{Name: "a", Adapter: "mqtt"},
	}

	for _, lc := range tests {
		if _, err := buildAdapter(lc, discardLogger()); err == nil {
			t.Errorf("buildAdapter(%s, %v) should fail", lc.Adapter, lc.AdapterConfig)
		}
	}
}

func TestBuildLive(t *testing.T) {
	if live := buildLive(config.LotConfig{Name: "a"}); live != nil {
		t.Errorf("buildLive() = %v, want nil without liveUrl", live)
	}

	live := buildLive(config.LotConfig{Name: "a", LiveURL: "http://dashboard/api/slots"})
	if live == nil {
		t.Fatal("buildLive() = nil, want adapter")
	}
	if live.URL != "http://dashboard/api/slots" || live.HTTPClient == nil {
		t.Errorf("live = %+v", live)
	}
}

func TestBuildStore(t *testing.T) {
	store, err := buildStore(&config.Config{Storage: "memory"}, discardLogger())
	if err != nil {
		t.Fatalf("buildStore(memory) error = %v", err)
	}
	if _, ok := store.(*storage.MemoryStore); !ok {
		t.Errorf("buildStore(memory) = %T", store)
	}

	if _, err := buildStore(&config.Config{Storage: "etcd"}, discardLogger()); err == nil {
		t.Error("buildStore(etcd) should fail")
	}
	if _, err := buildStore(&config.Config{Storage: "memory", MemoryTTL: -time.Second}, discardLogger()); err == nil {
		t.Error("buildStore(memory, negative ttl) should fail")
	}
}

func TestBuildStore_MemoryTTL(t *testing.T) {
	store, err := buildStore(&config.Config{Storage: "memory", MemoryTTL: time.Hour}, discardLogger())
	if err != nil {
		t.Fatalf("buildStore(memory) error = %v", err)
	}
	mem, ok := store.(*storage.MemoryStore)
	if !ok {
		t.Fatalf("buildStore(memory) = %T", store)
	}
	defer mem.Stop()

	ctx := context.Background()
	old := storage.Snapshot{Lot: "north-deck", GeneratedAt: time.Now().Add(-2 * time.Hour)}
	if err := mem.Put(ctx, old); err != nil {
		t.Fatal(err)
	}
	if _, found, err := mem.GetLatest(ctx, "north-deck"); err != nil || found {
		t.Errorf("GetLatest() found = %v, err = %v, want expired snapshot hidden", found, err)
	}

	fresh := storage.Snapshot{Lot: "north-deck", GeneratedAt: time.Now()}
	if err := mem.Put(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	if _, found, err := mem.GetLatest(ctx, "north-deck"); err != nil || !found {
		t.Errorf("GetLatest() found = %v, err = %v, want fresh snapshot", found, err)
	}
}

func TestBuildLot(t *testing.T) {
	lc := config.LotConfig{
		Name:          "north-deck",
		Adapter:       "http",
		AdapterConfig: map[string]string{"url": "http://dashboard/api/hourly"},
		SeasonLength:  24,
		Alpha:         0.3,
		Beta:          0.1,
		Gamma:         0.3,
		Horizon:       12,
		Step:          time.Hour,
		Window:        7 * 24 * time.Hour,
		Schedule:      "@every 5m",
		TotalSlots:    120,
		Rounding:      "floor",
		LiveURL:       "http://dashboard/api/slots",
	}
	m := metrics.NewWithRegistry(lc.Name, prometheus.NewRegistry())

	f, err := buildLot(lc, storage.NewMemoryStore(), discardLogger(), m)
	if err != nil {
		t.Fatalf("buildLot() error = %v", err)
	}
	if f.Lot() != "north-deck" || f.model.Name() != "holtwinters(24)" {
		t.Errorf("lot/model = %q/%q", f.Lot(), f.model.Name())
	}
	if f.plan.TotalSlots != 120 || f.plan.Live == nil || f.plan.Schedule != "@every 5m" {
		t.Errorf("plan = %+v", f.plan)
	}

	lc.LiveURL = ""
	f, err = buildLot(lc, storage.NewMemoryStore(), discardLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.plan.Live != nil {
		t.Error("plan.Live should be a nil interface without liveUrl")
	}

	lc.Alpha = 2
	if _, err := buildLot(lc, storage.NewMemoryStore(), discardLogger(), nil); err == nil {
		t.Error("buildLot() should reject invalid model parameters")
	}
}

package promsource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

func testConfig(addr string) Config {
	return Config{
		Addr:        addr,
		EntityLabel: "job",
		TierLabel:   "tier",
		Signals: []SignalConfig{
			{Name: "cpu_pct", Query: `avg(rate(cpu_seconds{job="$entity"}[5m])) * 100`, Unit: "%"},
		},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/query", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[
			{"metric":{"job":"api","tier":"gold"},"value":[1767268800,"1"]},
			{"metric":{"job":"api","tier":"gold"},"value":[1767268800,"1"]},
			{"metric":{"job":"worker"},"value":[1767268800,"1"]}
		]}}`))
	})
	mux.HandleFunc("/api/v1/query_range", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"matrix","result":[
			{"metric":{"job":"api"},"values":[[1767268800,"40"],[1767268830,"42"],[1767268860,"44"]]}
		]}}`))
	})
	return httptest.NewServer(mux)
}

func TestListEntitiesDiscovery(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	src, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	entities, err := src.ListEntities(context.Background())
	if err != nil {
		t.Fatalf("list entities: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 deduplicated entities, got %d", len(entities))
	}
	if entities[0].Key != "api" || entities[0].Tier != "gold" {
		t.Fatalf("unexpected first entity: %+v", entities[0])
	}
	if entities[1].Key != "worker" {
		t.Fatalf("unexpected second entity: %+v", entities[1])
	}
}

func TestFetchRangeOldestFirst(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	src, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	obs, err := src.Fetch(context.Background(), domain.Entity{Key: "api"}, domain.Signal{Name: "cpu_pct"}, 5*time.Minute)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(obs))
	}
	if obs[0].Value != 40 || obs[2].Value != 44 {
		t.Fatalf("expected oldest-first values, got %+v", obs)
	}
	if !obs[0].Timestamp.Before(obs[2].Timestamp) {
		t.Fatalf("expected ascending timestamps")
	}
	if obs[0].Entity != "api" || obs[0].Signal != "cpu_pct" {
		t.Fatalf("observation should carry entity and signal: %+v", obs[0])
	}
}

func TestFetchUnknownSignal(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	src, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	if _, err := src.Fetch(context.Background(), domain.Entity{Key: "api"}, domain.Signal{Name: "nope"}, time.Minute); err == nil {
		t.Fatalf("expected error for unconfigured signal")
	}
}

func TestUnreachableServerIsSourceUnavailable(t *testing.T) {
	srv := newTestServer(t)
	srv.Close() // reachable address, refused connection

	src, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	_, err = src.ListEntities(context.Background())
	if !errors.Is(err, ports.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}

	_, err = src.Fetch(context.Background(), domain.Entity{Key: "api"}, domain.Signal{Name: "cpu_pct"}, time.Minute)
	if !errors.Is(err, ports.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestConfigValidateRequiresPlaceholder(t *testing.T) {
	cfg := Config{
		Addr:    "http://localhost:9090",
		Signals: []SignalConfig{{Name: "cpu_pct", Query: "up"}},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for query without $entity")
	}
}

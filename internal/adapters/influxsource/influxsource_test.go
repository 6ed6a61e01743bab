package influxsource

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

const fetchCSV = `#datatype,string,long,dateTime:RFC3339,dateTime:RFC3339,dateTime:RFC3339,double,string,string,string
#group,false,false,true,true,false,false,true,true,true
#default,_result,,,,,,,,
,result,table,_start,_stop,_time,_value,_field,_measurement,service
,,0,2026-06-01T00:00:00Z,2026-06-01T01:00:00Z,2026-06-01T00:00:30Z,40,queue_depth,app,api
,,0,2026-06-01T00:00:00Z,2026-06-01T01:00:00Z,2026-06-01T00:01:00Z,42,queue_depth,app,api
`

const discoveryCSV = `#datatype,string,long,string
#group,false,false,false
#default,_result,,
,result,table,_value
,,0,api
,,0,worker
`

func testConfig(url string) Config {
	return Config{
		URL:         url,
		Org:         "infra",
		Bucket:      "telemetry",
		Measurement: "app",
		Signals:     []SignalConfig{{Name: "queue_depth", Unit: "msgs"}},
	}
}

func newFluxServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/query" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(body))
	}))
}

func TestFetchParsesFluxResult(t *testing.T) {
	srv := newFluxServer(t, fetchCSV)
	defer srv.Close()

	src, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	defer src.Close()

	obs, err := src.Fetch(context.Background(), domain.Entity{Key: "api"}, domain.Signal{Name: "queue_depth"}, time.Hour)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if obs[0].Value != 40 || obs[1].Value != 42 {
		t.Fatalf("expected oldest-first values [40 42], got %+v", obs)
	}
	if obs[0].Entity != "api" || obs[0].Signal != "queue_depth" {
		t.Fatalf("observation should carry entity and signal: %+v", obs[0])
	}
}

func TestListEntitiesFromTagValues(t *testing.T) {
	srv := newFluxServer(t, discoveryCSV)
	defer srv.Close()

	src, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	defer src.Close()

	entities, err := src.ListEntities(context.Background())
	if err != nil {
		t.Fatalf("list entities: %v", err)
	}
	if len(entities) != 2 || entities[0].Key != "api" || entities[1].Key != "worker" {
		t.Fatalf("unexpected entities: %+v", entities)
	}
}

func TestUnreachableServerIsSourceUnavailable(t *testing.T) {
	srv := newFluxServer(t, fetchCSV)
	srv.Close()

	src, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	defer src.Close()

	_, err = src.ListEntities(context.Background())
	if !errors.Is(err, ports.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestFetchUnknownSignal(t *testing.T) {
	srv := newFluxServer(t, fetchCSV)
	defer srv.Close()

	src, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	defer src.Close()

	if _, err := src.Fetch(context.Background(), domain.Entity{Key: "api"}, domain.Signal{Name: "nope"}, time.Hour); err == nil {
		t.Fatalf("expected error for unconfigured signal")
	}
}

package ifpedge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Nordvei/ifp-edge/internal/app/baseline"
	"github.com/Nordvei/ifp-edge/internal/domain"
)

type stubSource struct {
	entities []Entity
	signals  []Signal
	windows  map[string][]Observation
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Signals() []Signal { return s.signals }

func (s *stubSource) ListEntities(ctx context.Context) ([]Entity, error) {
	return s.entities, nil
}

func (s *stubSource) Fetch(ctx context.Context, entity Entity, signal Signal, lookback time.Duration) ([]Observation, error) {
	return s.windows[entity.Key+"/"+signal.Name], nil
}

type stubSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *stubSink) Name() string { return "stub" }

func (s *stubSink) Emit(ctx context.Context, ev Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

type stubObs struct{}

func (stubObs) LogInfo(msg string, fields ...Field) {}

func (stubObs) LogError(msg string, err error, fields ...Field) {}

func (stubObs) LogCritical(msg string, err error, fields ...Field) {}

func (stubObs) IncCounter(name string, v float64) {}

func (stubObs) ObserveLatency(name string, seconds float64) {}

func (stubObs) SetGauge(name string, v float64) {}

type memSnapshots struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (m *memSnapshots) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

func (m *memSnapshots) Load() ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, false, nil
	}
	return m.data, true, nil
}

func TestNewRuntimeWithCustomAdapters(t *testing.T) {
	ts := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	src := &stubSource{
		entities: []Entity{{Key: "api"}},
		signals:  []Signal{{Name: "rps"}},
		windows: map[string][]Observation{
			"api/rps": {{Entity: "api", Signal: "rps", Timestamp: ts, Value: 120}},
		},
	}
	snk := &stubSink{}
	store := &memSnapshots{}

	rt, err := NewRuntime(&Config{},
		WithMetricsSource(src),
		WithActionSink(snk),
		WithObservability(stubObs{}),
		WithSnapshotStore(store),
	)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	report, err := rt.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.EntitiesObserved != 1 || len(report.Verdicts) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !report.Verdicts[0].InsufficientData {
		t.Fatalf("a cold baseline must yield an insufficient-data verdict")
	}
	if len(snk.events) != 0 {
		t.Fatalf("cold start must not alert, got %+v", snk.events)
	}
	if store.saves != 1 {
		t.Fatalf("run-once should persist one snapshot, got %d", store.saves)
	}
}

func TestRuntimeRestoresBaselineSnapshot(t *testing.T) {
	ts := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	// Warm a store out-of-band and hand its snapshot to the runtime.
	warm := baseline.NewStore(baseline.Config{})
	for day := 1; day <= 10; day++ {
		warm.Update(domain.Observation{
			Entity: "api", Signal: "rps",
			Timestamp: time.Date(2026, 5, day, 8, 0, 0, 0, time.UTC),
			Value:     50,
		})
	}
	data, err := warm.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	store := &memSnapshots{data: data}

	src := &stubSource{
		entities: []Entity{{Key: "api"}},
		signals:  []Signal{{Name: "rps"}},
		windows: map[string][]Observation{
			"api/rps": {{Entity: "api", Signal: "rps", Timestamp: ts, Value: 500}},
		},
	}
	snk := &stubSink{}

	rt, err := NewRuntime(&Config{},
		WithMetricsSource(src),
		WithActionSink(snk),
		WithObservability(stubObs{}),
		WithSnapshotStore(store),
	)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	report, err := rt.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Anomalies != 1 {
		t.Fatalf("restored baselines must classify 500 as anomalous: %+v", report.Verdicts)
	}
	if len(snk.events) != 1 || snk.events[0].Kind != domain.EventAnomaly {
		t.Fatalf("expected one anomaly event, got %+v", snk.events)
	}
}

func TestNewRuntimeRequiresSource(t *testing.T) {
	_, err := NewRuntime(&Config{},
		WithActionSink(&stubSink{}),
		WithObservability(stubObs{}),
	)
	if err == nil {
		t.Fatalf("expected error when no source is configured")
	}
}

func TestNewRuntimeNilConfig(t *testing.T) {
	if _, err := NewRuntime(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

package ifpedge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Nordvei/ifp-edge/internal/adapters/influxsource"
	"github.com/Nordvei/ifp-edge/internal/adapters/observability"
	"github.com/Nordvei/ifp-edge/internal/adapters/opcuasource"
	"github.com/Nordvei/ifp-edge/internal/adapters/promsource"
	"github.com/Nordvei/ifp-edge/internal/adapters/sink"
	"github.com/Nordvei/ifp-edge/internal/adapters/snapshot"
	"github.com/Nordvei/ifp-edge/internal/adapters/walletsource"
	"github.com/Nordvei/ifp-edge/internal/app/agent"
	"github.com/Nordvei/ifp-edge/internal/app/baseline"
	"github.com/Nordvei/ifp-edge/internal/app/classify"
	"github.com/Nordvei/ifp-edge/internal/app/predict"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	sources       []ports.MetricsSource
	sink          ports.ActionSink
	observability ports.Observability
	snapshots     ports.SnapshotStore
}

// WithMetricsSource adds a custom telemetry source alongside (or instead of)
// the configured adapters.
func WithMetricsSource(src MetricsSource) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sources = append(o.sources, src)
	}
}

// WithActionSink replaces the configured delivery channels entirely.
func WithActionSink(s ActionSink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithSnapshotStore lets callers bring their own baseline persistence.
func WithSnapshotStore(st SnapshotStore) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.snapshots = st
	}
}

// Runtime wires the telemetry sources, baseline store, classifier, predictor,
// and sinks into a running agent, and exposes simple lifecycle hooks for
// embedding the monitor inside any Go service.
type Runtime struct {
	cfg        *Config
	agent      *agent.Agent
	baselines  *baseline.Store
	snapshots  ports.SnapshotStore
	obs        ports.Observability
	db         *sql.DB
	influx     *influxsource.Source
	opc        *opcuasource.Source
	metricsSrv *http.Server
}

// NewRuntime bootstraps the default adapters from the config (Prometheus,
// InfluxDB, wallet, and OPC UA sources; log, Slack, and Postgres sinks;
// Prometheus observability; file-backed baseline snapshots). RuntimeOption
// values override any dependency.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs()
	}

	rt := &Runtime{cfg: cfg, obs: obs}

	snapshots := overrides.snapshots
	if snapshots == nil && cfg.Snapshot.Path != "" {
		var err error
		snapshots, err = snapshot.NewFileStore(cfg.Snapshot.Path)
		if err != nil {
			return nil, err
		}
	}
	rt.snapshots = snapshots

	rt.baselines = baseline.NewStore(cfg.Baseline)
	if snapshots != nil {
		data, ok, err := snapshots.Load()
		if err != nil {
			return nil, fmt.Errorf("load baseline snapshot: %w", err)
		}
		if ok {
			if err := rt.baselines.Restore(data); err != nil {
				obs.LogError("baseline snapshot unreadable, starting cold", err)
			}
		}
	}

	sources := append([]ports.MetricsSource(nil), overrides.sources...)
	if cfg.Sources.Prometheus != nil {
		src, err := promsource.New(*cfg.Sources.Prometheus)
		if err != nil {
			return nil, fmt.Errorf("prometheus source: %w", err)
		}
		sources = append(sources, src)
	}
	if cfg.Sources.InfluxDB != nil {
		src, err := influxsource.New(*cfg.Sources.InfluxDB)
		if err != nil {
			return nil, fmt.Errorf("influxdb source: %w", err)
		}
		rt.influx = src
		sources = append(sources, src)
	}
	if cfg.Sources.Wallet != nil {
		src, err := walletsource.New(*cfg.Sources.Wallet)
		if err != nil {
			return nil, fmt.Errorf("wallet source: %w", err)
		}
		sources = append(sources, src)
	}
	if cfg.Sources.OPCUA != nil {
		src, err := opcuasource.New(*cfg.Sources.OPCUA)
		if err != nil {
			return nil, fmt.Errorf("opcua source: %w", err)
		}
		rt.opc = src
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one metrics source is required")
	}

	actionSink := overrides.sink
	if actionSink == nil {
		sinks := []ports.ActionSink{sink.NewLogSink(obs)}
		if cfg.Sinks.Slack != nil {
			slack, err := sink.NewSlackSink(*cfg.Sinks.Slack)
			if err != nil {
				return nil, fmt.Errorf("slack sink: %w", err)
			}
			sinks = append(sinks, slack)
		}
		if cfg.Sinks.Postgres != nil {
			db, err := sql.Open("postgres", cfg.Sinks.Postgres.ConnString)
			if err != nil {
				return nil, fmt.Errorf("postgres sink: %w", err)
			}
			rt.db = db
			sinks = append(sinks, sink.NewPostgresSink(db, cfg.Sinks.Postgres.Table))
		}
		actionSink = sink.NewMultiSink(sinks...)
	}

	classifier := classify.New(cfg.Classifier, rt.baselines)
	predictor := predict.New(cfg.Depletion)

	ag, err := agent.New(cfg.Agent, sources, actionSink, obs, rt.baselines, classifier, predictor)
	if err != nil {
		return nil, err
	}
	rt.agent = ag
	return rt, nil
}

// Start brings up the push-based sources and the metrics HTTP server. It
// returns immediately; call Run to block on a context instead.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	if r.opc != nil {
		if err := r.opc.Start(); err != nil {
			return err
		}
	}
	r.startMetrics()
	return nil
}

// Run starts the runtime and cycles until the context is cancelled, saving a
// baseline snapshot every few cycles. Upon cancellation it attempts a
// graceful shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}

	var sinceSnapshot int
	for {
		if _, err := r.agent.RunCycle(ctx); err != nil {
			break
		}

		sinceSnapshot++
		if sinceSnapshot >= r.cfg.Snapshot.EveryCycles {
			sinceSnapshot = 0
			r.saveSnapshot()
		}

		select {
		case <-ctx.Done():
		case <-time.After(r.agent.Interval()):
			continue
		}
		break
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// RunOnce performs a single observe/reflect/act cycle and returns its report.
// Push-based sources must be started by the caller when needed.
func (r *Runtime) RunOnce(ctx context.Context) (CycleReport, error) {
	report, err := r.agent.RunCycle(ctx)
	if err != nil {
		return report, err
	}
	r.saveSnapshot()
	return report, nil
}

// Shutdown persists the baselines and stops the sources, metrics server, and
// DB connection.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	r.saveSnapshot()

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if r.opc != nil {
		if err := r.opc.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.influx != nil {
		r.influx.Close()
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Runtime) saveSnapshot() {
	if r.snapshots == nil {
		return
	}
	data, err := r.baselines.Snapshot()
	if err != nil {
		r.obs.LogError("baseline snapshot failed", err)
		return
	}
	if err := r.snapshots.Save(data); err != nil {
		r.obs.LogError("baseline snapshot save failed", err)
	}
}

func (r *Runtime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()
}

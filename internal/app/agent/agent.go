package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Nordvei/ifp-edge/internal/adapters/observability"
	"github.com/Nordvei/ifp-edge/internal/app/baseline"
	"github.com/Nordvei/ifp-edge/internal/app/classify"
	"github.com/Nordvei/ifp-edge/internal/app/predict"
	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

// CorrelationConfig tunes fleet-wide drain detection: when at least
// MinEntities decreasing signals drain faster than MinDrainPerHour in the
// same cycle, the agent raises one correlated-drain event instead of (or
// on top of) the per-entity depletion alerts.
type CorrelationConfig struct {
	MinEntities     int     `yaml:"min_entities"`
	MinDrainPerHour float64 `yaml:"min_drain_per_hour"`
}

// Config is the decision-loop policy. Cooldown zero means the default; a
// negative value disables suppression so every alert-worthy item is emitted
// every cycle.
type Config struct {
	Interval     time.Duration     `yaml:"interval"`
	FetchTimeout time.Duration     `yaml:"fetch_timeout"`
	Lookback     time.Duration     `yaml:"lookback"`
	Parallelism  int               `yaml:"parallelism"`
	Cooldown     time.Duration     `yaml:"cooldown"`
	Correlation  CorrelationConfig `yaml:"correlation"`
}

func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = c.Interval / 3
	}
	if c.Lookback <= 0 {
		c.Lookback = time.Hour
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 8
	}
	if c.Cooldown == 0 {
		c.Cooldown = 15 * time.Minute
	}
	if c.Correlation.MinEntities <= 0 {
		c.Correlation.MinEntities = 3
	}
	if c.Correlation.MinDrainPerHour <= 0 {
		c.Correlation.MinDrainPerHour = 50
	}
}

func (c *Config) Validate() error {
	if c.FetchTimeout > c.Interval {
		return fmt.Errorf("fetch_timeout %s must not exceed interval %s", c.FetchTimeout, c.Interval)
	}
	return nil
}

// Agent runs the observe/reflect/act loop: pull telemetry, fold it into
// the baselines, collect verdicts and depletion estimates, then emit
// alert-worthy items to the sink. One cycle at a time; the next cycle
// starts Interval after the previous one ends, so cycles never overlap.
type Agent struct {
	cfg        Config
	sources    []ports.MetricsSource
	sink       ports.ActionSink
	obs        ports.Observability
	baselines  *baseline.Store
	classifier *classify.Classifier
	predictor  *predict.Predictor
	now        func() time.Time

	mu       sync.Mutex
	cycle    uint64
	lastEmit map[string]time.Time
}

func New(cfg Config, sources []ports.MetricsSource, sink ports.ActionSink, obs ports.Observability,
	baselines *baseline.Store, classifier *classify.Classifier, predictor *predict.Predictor) (*Agent, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errors.New("at least one metrics source is required")
	}
	if sink == nil {
		return nil, errors.New("an action sink is required")
	}
	return &Agent{
		cfg:        cfg,
		sources:    sources,
		sink:       sink,
		obs:        obs,
		baselines:  baselines,
		classifier: classifier,
		predictor:  predictor,
		now:        time.Now,
		lastEmit:   make(map[string]time.Time),
	}, nil
}

// Interval reports the configured cycle interval.
func (a *Agent) Interval() time.Duration { return a.cfg.Interval }

// Run executes cycles until the context is cancelled. A cancelled context
// abandons the in-flight phase; it is the only way Run returns.
func (a *Agent) Run(ctx context.Context) error {
	for {
		if _, err := a.RunCycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.Interval):
		}
	}
}

// capture is one fetched window for an (entity, signal) pair.
type capture struct {
	entity domain.Entity
	signal domain.Signal
	window []domain.Observation
}

// RunCycle performs exactly one observe/reflect/act pass and returns its
// report. Source failures shrink the report; only cancellation is an error.
func (a *Agent) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	a.mu.Lock()
	a.cycle++
	cycle := a.cycle
	a.mu.Unlock()

	started := a.now()
	report := domain.CycleReport{Cycle: cycle, StartedAt: started}

	captures, skipped := a.observe(ctx)
	report.EntitiesSkipped = skipped
	if err := ctx.Err(); err != nil {
		return report, err
	}

	a.reflect(&report, captures)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	a.act(ctx, &report)

	report.Duration = a.now().Sub(started)
	a.publishMetrics(report)
	a.obs.LogInfo("cycle complete",
		ports.Field{Key: "cycle", Value: report.Cycle},
		ports.Field{Key: "observed", Value: report.EntitiesObserved},
		ports.Field{Key: "skipped", Value: report.EntitiesSkipped},
		ports.Field{Key: "anomalies", Value: report.Anomalies},
		ports.Field{Key: "coherence", Value: report.Coherence},
		ports.Field{Key: "duration", Value: report.Duration.String()},
	)
	return report, nil
}

// observe lists entities on every source and fetches each tracked signal's
// recent window in parallel. Unavailable sources or entities are skipped
// for this cycle and logged, never fatal.
func (a *Agent) observe(ctx context.Context) ([]capture, int) {
	var (
		mu       sync.Mutex
		captures []capture
		skipped  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Parallelism)

	for _, src := range a.sources {
		src := src
		lctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		entities, err := src.ListEntities(lctx)
		cancel()
		if err != nil {
			a.obs.LogError("entity discovery failed", err, ports.Field{Key: "source", Value: src.Name()})
			mu.Lock()
			skipped++
			mu.Unlock()
			continue
		}

		for _, entity := range entities {
			entity := entity
			if gctx.Err() != nil {
				break
			}
			for _, signal := range src.Signals() {
				signal := signal
				g.Go(func() error {
					if gctx.Err() != nil {
						return nil
					}
					fctx, cancel := context.WithTimeout(gctx, a.cfg.FetchTimeout)
					defer cancel()

					window, err := src.Fetch(fctx, entity, signal, a.cfg.Lookback)
					if err != nil {
						a.obs.LogError("fetch failed, skipping entity this cycle", err,
							ports.Field{Key: "source", Value: src.Name()},
							ports.Field{Key: "entity", Value: entity.Key},
							ports.Field{Key: "signal", Value: signal.Name},
						)
						mu.Lock()
						skipped++
						mu.Unlock()
						return nil
					}
					if len(window) == 0 {
						return nil
					}
					mu.Lock()
					captures = append(captures, capture{entity: entity, signal: signal, window: window})
					mu.Unlock()
					return nil
				})
			}
		}
	}
	_ = g.Wait()

	sort.Slice(captures, func(i, j int) bool {
		if captures[i].entity.Key != captures[j].entity.Key {
			return captures[i].entity.Key < captures[j].entity.Key
		}
		return captures[i].signal.Name < captures[j].signal.Name
	})
	return captures, skipped
}

// reflect classifies the latest observation of every capture and runs the
// depletion predictor over every decreasing-monotonic window. All verdicts
// land in the report before any action is taken.
func (a *Agent) reflect(report *domain.CycleReport, captures []capture) {
	entities := make(map[string]bool)
	anomalousEntities := make(map[string]bool)

	for _, c := range captures {
		entities[c.entity.Key] = true
		report.Observations += len(c.window)

		latest := c.window[len(c.window)-1]
		verdict := a.classifier.Classify(latest)
		report.Verdicts = append(report.Verdicts, verdict)
		if verdict.Severity == domain.SeverityAnomaly {
			report.Anomalies++
			anomalousEntities[c.entity.Key] = true
		}

		if c.signal.Monotonicity == domain.MonotonicityDecreasing {
			est := a.predictor.Predict(c.entity, c.signal, c.window)
			report.Estimates = append(report.Estimates, est)
		}
	}

	report.EntitiesObserved = len(entities)
	if len(entities) == 0 {
		report.Coherence = 1
	} else {
		report.Coherence = 1 - float64(len(anomalousEntities))/float64(len(entities))
	}
}

// act emits one event per alert-worthy verdict and estimate, plus a single
// correlated-drain event when enough of the fleet drains at once. Delivery
// failures are logged and never block the remaining emissions.
func (a *Agent) act(ctx context.Context, report *domain.CycleReport) {
	now := a.now()

	for _, v := range report.Verdicts {
		if !v.Severity.Exceeds(domain.SeverityNormal) {
			continue
		}
		a.emit(ctx, domain.Event{
			Kind:      domain.EventAnomaly,
			Entity:    v.Entity,
			Signal:    v.Signal,
			Severity:  v.Severity,
			Rationale: v.Rationale,
			Timestamp: now,
		})
	}

	for _, est := range report.Estimates {
		if !est.Urgency.Exceeds(domain.UrgencyNone) {
			continue
		}
		a.emit(ctx, domain.Event{
			Kind:      domain.EventDepletion,
			Entity:    est.Entity,
			Signal:    est.Signal,
			Severity:  severityForUrgency(est.Urgency),
			Rationale: est.Rationale,
			Timestamp: now,
		})
	}

	if ev, ok := a.correlatedDrain(report.Estimates, now); ok {
		a.emit(ctx, ev)
	}
}

// correlatedDrain flags the cycle when several entities drain fast at the
// same time, which usually means one upstream cause rather than independent
// incidents.
func (a *Agent) correlatedDrain(estimates []domain.DepletionEstimate, now time.Time) (domain.Event, bool) {
	var draining []string
	signal := ""
	for _, est := range estimates {
		if est.DrainRatePerHour == nil || *est.DrainRatePerHour < a.cfg.Correlation.MinDrainPerHour {
			continue
		}
		draining = append(draining, est.Entity)
		signal = est.Signal
	}
	if len(draining) < a.cfg.Correlation.MinEntities {
		return domain.Event{}, false
	}

	sort.Strings(draining)
	return domain.Event{
		Kind:     domain.EventCorrelatedDrain,
		Entity:   strings.Join(draining, ","),
		Signal:   signal,
		Severity: domain.SeverityAnomaly,
		Rationale: fmt.Sprintf("%d entities draining faster than %.0f/h simultaneously: %s",
			len(draining), a.cfg.Correlation.MinDrainPerHour, strings.Join(draining, ", ")),
		Timestamp: now,
	}, true
}

// emit hands one event to the sink unless an identical alert fired within
// the cooldown window. A different severity for the same pair is a new
// alert, so escalations are never suppressed. A negative cooldown turns
// suppression off entirely.
func (a *Agent) emit(ctx context.Context, ev domain.Event) {
	if a.cfg.Cooldown > 0 {
		key := strings.Join([]string{ev.Entity, ev.Signal, string(ev.Kind), string(ev.Severity)}, "\x1f")

		a.mu.Lock()
		last, seen := a.lastEmit[key]
		if seen && ev.Timestamp.Sub(last) < a.cfg.Cooldown {
			a.mu.Unlock()
			return
		}
		a.lastEmit[key] = ev.Timestamp
		a.mu.Unlock()
	}

	if err := a.sink.Emit(ctx, ev); err != nil {
		a.obs.LogError("event emission failed", err,
			ports.Field{Key: "sink", Value: a.sink.Name()},
			ports.Field{Key: "entity", Value: ev.Entity},
			ports.Field{Key: "kind", Value: string(ev.Kind)},
		)
		return
	}
	a.obs.IncCounter(observability.MetricEventsTotal, 1)
}

func (a *Agent) publishMetrics(report domain.CycleReport) {
	a.obs.IncCounter(observability.MetricCyclesTotal, 1)
	a.obs.IncCounter(observability.MetricAnomaliesTotal, float64(report.Anomalies))
	a.obs.IncCounter(observability.MetricSkipsTotal, float64(report.EntitiesSkipped))
	a.obs.SetGauge(observability.MetricEntitiesGauge, float64(report.EntitiesObserved))
	a.obs.SetGauge(observability.MetricCoherenceGauge, report.Coherence)
	a.obs.SetGauge(observability.MetricBaselineGauge, float64(a.baselines.Len()))
	a.obs.ObserveLatency(observability.MetricCycleDurationSec, report.Duration.Seconds())
}

func severityForUrgency(u domain.Urgency) domain.Severity {
	switch u {
	case domain.UrgencyCritical:
		return domain.SeverityAnomaly
	case domain.UrgencyWarning:
		return domain.SeverityWatch
	default:
		return domain.SeverityNormal
	}
}

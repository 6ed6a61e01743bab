package observability

import (
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Nordvei/ifp-edge/internal/ports"
)

// Metric names exported by the agent.
const (
	MetricCyclesTotal      = "ifp_cycles_total"
	MetricAnomaliesTotal   = "ifp_anomalies_total"
	MetricEventsTotal      = "ifp_events_emitted_total"
	MetricSkipsTotal       = "ifp_entities_skipped_total"
	MetricEntitiesGauge    = "ifp_entities_observed"
	MetricCoherenceGauge   = "ifp_coherence_score"
	MetricBaselineGauge    = "ifp_baseline_pairs"
	MetricCycleDurationSec = "ifp_cycle_duration_seconds"
)

type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs() *PromObs {
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricCyclesTotal,
		Help: "Total decision cycles completed.",
	})
	anomalies := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricAnomaliesTotal,
		Help: "Total anomaly verdicts produced by the classifier.",
	})
	events := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricEventsTotal,
		Help: "Total events handed to the action sink.",
	})
	skips := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricSkipsTotal,
		Help: "Entities skipped because their source was unavailable.",
	})
	entities := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricEntitiesGauge,
		Help: "Entities observed in the most recent cycle.",
	})
	coherence := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricCoherenceGauge,
		Help: "Fraction of the fleet behaving within baseline, 0 to 1.",
	})
	baselinePairs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricBaselineGauge,
		Help: "Distinct (entity, signal) pairs tracked by the baseline model.",
	})
	cycleDur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricCycleDurationSec,
		Help:    "Wall-clock duration of a full observe/reflect/act cycle.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	prometheus.MustRegister(cycles, anomalies, events, skips, entities, coherence, baselinePairs, cycleDur)

	return &PromObs{
		logger: slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		counters: map[string]prometheus.Counter{
			MetricCyclesTotal:    cycles,
			MetricAnomaliesTotal: anomalies,
			MetricEventsTotal:    events,
			MetricSkipsTotal:     skips,
		},
		gauges: map[string]prometheus.Gauge{
			MetricEntitiesGauge:  entities,
			MetricCoherenceGauge: coherence,
			MetricBaselineGauge:  baselinePairs,
		},
		histos: map[string]prometheus.Observer{
			MetricCycleDurationSec: cycleDur,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		fields = append(fields, ports.Field{Key: "err", Value: err.Error()})
	}
	p.logger.Error(msg, attrs(fields)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		fields = append(fields, ports.Field{Key: "err", Value: err.Error()})
	}
	fields = append(fields, ports.Field{Key: "critical", Value: true})
	p.logger.Error(msg, attrs(fields)...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)

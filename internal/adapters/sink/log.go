package sink

import (
	"context"

	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

// LogSink writes every event to the structured log. It is the default sink
// when no delivery channel is configured, and doubles as an audit trail
// alongside the others.
type LogSink struct {
	obs ports.Observability
}

func NewLogSink(obs ports.Observability) *LogSink {
	return &LogSink{obs: obs}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) Emit(ctx context.Context, ev domain.Event) error {
	fields := []ports.Field{
		{Key: "kind", Value: string(ev.Kind)},
		{Key: "entity", Value: ev.Entity},
		{Key: "signal", Value: ev.Signal},
		{Key: "severity", Value: string(ev.Severity)},
		{Key: "ts", Value: ev.Timestamp},
	}
	if ev.Severity == domain.SeverityAnomaly || ev.Kind == domain.EventCorrelatedDrain {
		l.obs.LogError(ev.Rationale, nil, fields...)
	} else {
		l.obs.LogInfo(ev.Rationale, fields...)
	}
	return nil
}

var _ ports.ActionSink = (*LogSink)(nil)

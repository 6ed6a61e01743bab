package ifpedge

import (
	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

// Entity is one observed infrastructure unit (a service, a wallet, a sensor).
type Entity = domain.Entity

// Signal names one tracked metric stream.
type Signal = domain.Signal

// Observation is a single timestamped sample of a signal.
type Observation = domain.Observation

// Verdict is the classifier's judgement of one observation.
type Verdict = domain.Verdict

// DepletionEstimate is the predictor's time-to-empty projection.
type DepletionEstimate = domain.DepletionEstimate

// Event is the structured alert handed to action sinks.
type Event = domain.Event

// CycleReport aggregates one observe/reflect/act cycle.
type CycleReport = domain.CycleReport

// MetricsSource pulls entities and signal windows from a telemetry backend.
type MetricsSource = ports.MetricsSource

// ActionSink receives alert events; retries are the sink's concern.
type ActionSink = ports.ActionSink

// Observability emits metrics and structured logs about the loop.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// SnapshotStore persists baseline state across restarts.
type SnapshotStore = ports.SnapshotStore

// ErrSourceUnavailable marks a skip-this-entity-this-cycle fetch failure.
var ErrSourceUnavailable = ports.ErrSourceUnavailable

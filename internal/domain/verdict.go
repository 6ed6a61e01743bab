package domain

import "time"

// Severity grades a classifier verdict.
type Severity string

const (
	SeverityNormal  Severity = "normal"
	SeverityWatch   Severity = "watch"
	SeverityAnomaly Severity = "anomaly"
)

// Exceeds reports whether s outranks other.
func (s Severity) Exceeds(other Severity) bool {
	return severityRank(s) > severityRank(other)
}

func severityRank(s Severity) int {
	switch s {
	case SeverityWatch:
		return 1
	case SeverityAnomaly:
		return 2
	default:
		return 0
	}
}

// Verdict is the classifier's judgement of a single observation. It lives for
// one cycle only.
type Verdict struct {
	Entity           string    `json:"entity"`
	Signal           string    `json:"signal"`
	Severity         Severity  `json:"severity"`
	Score            float64   `json:"score"`
	Rationale        string    `json:"rationale"`
	InsufficientData bool      `json:"insufficient_data,omitempty"`
	Timestamp        time.Time `json:"ts"`
}

// Urgency grades a depletion estimate.
type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyNormal   Urgency = "normal"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

// Exceeds reports whether u outranks other.
func (u Urgency) Exceeds(other Urgency) bool {
	return urgencyRank(u) > urgencyRank(other)
}

func urgencyRank(u Urgency) int {
	switch u {
	case UrgencyNormal:
		return 1
	case UrgencyWarning:
		return 2
	case UrgencyCritical:
		return 3
	default:
		return 0
	}
}

// DepletionEstimate is the predictor's time-to-empty projection for one
// decreasing signal. DrainRatePerHour and MinutesToEmpty are nil when the
// window holds too little history or the value is not draining.
type DepletionEstimate struct {
	Entity           string    `json:"entity"`
	Signal           string    `json:"signal"`
	CurrentValue     float64   `json:"current_value"`
	DrainRatePerHour *float64  `json:"drain_rate_per_hour,omitempty"`
	MinutesToEmpty   *float64  `json:"minutes_to_empty,omitempty"`
	Urgency          Urgency   `json:"urgency"`
	Rationale        string    `json:"rationale"`
	Timestamp        time.Time `json:"ts"`
}

// EventKind distinguishes what produced an alert event.
type EventKind string

const (
	EventAnomaly         EventKind = "anomaly"
	EventDepletion       EventKind = "depletion"
	EventCorrelatedDrain EventKind = "correlated_drain"
)

// Event is the structured alert handed to action sinks. Delivery is attempted
// once per cycle per alert-worthy item; retries are the sink's concern.
type Event struct {
	Kind      EventKind `json:"kind"`
	Entity    string    `json:"entity"`
	Signal    string    `json:"signal"`
	Severity  Severity  `json:"severity"`
	Rationale string    `json:"rationale"`
	Timestamp time.Time `json:"ts"`
}

// CycleReport aggregates one observe/reflect/act cycle. It is handed to the
// action layer at cycle end and then discarded.
type CycleReport struct {
	Cycle            uint64              `json:"cycle"`
	StartedAt        time.Time           `json:"started_at"`
	Duration         time.Duration       `json:"duration"`
	EntitiesObserved int                 `json:"entities_observed"`
	EntitiesSkipped  int                 `json:"entities_skipped"`
	Observations     int                 `json:"observations"`
	Verdicts         []Verdict           `json:"verdicts,omitempty"`
	Estimates        []DepletionEstimate `json:"estimates,omitempty"`
	Anomalies        int                 `json:"anomalies"`
	Coherence        float64             `json:"coherence"`
}

package domain

import "time"

// Monotonicity hints how a signal's value moves over time. The depletion
// predictor only runs for decreasing signals.
type Monotonicity string

const (
	MonotonicityFree       Monotonicity = "free"
	MonotonicityIncreasing Monotonicity = "increasing"
	MonotonicityDecreasing Monotonicity = "decreasing"
)

// Entity is an observed service or resource instance (a scraped service, a
// wallet address, a facility sensor).
type Entity struct {
	Key       string    `json:"key"`
	Tier      string    `json:"tier,omitempty"`
	FirstSeen time.Time `json:"first_seen,omitempty"`
}

// Signal is a named numeric metric scoped to an entity.
type Signal struct {
	Name         string       `json:"name"`
	Unit         string       `json:"unit,omitempty"`
	Monotonicity Monotonicity `json:"monotonicity,omitempty"`
}

// Observation is one (entity, signal, timestamp, value) sample. Observations
// are folded into the baseline store and then discarded; the agent keeps no
// raw history.
type Observation struct {
	Entity    string    `json:"entity"`
	Signal    string    `json:"signal"`
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
}

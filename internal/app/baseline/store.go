package baseline

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Nordvei/ifp-edge/internal/domain"
)

const (
	// DefaultMinSamples is the all-time sample count below which Deviation
	// reports insufficient data instead of a score.
	DefaultMinSamples = 5

	// DefaultBucketMinSamples is the per-hour-bucket count below which
	// Deviation falls back to the all-time baseline.
	DefaultBucketMinSamples = 3

	// epsilon floors the standard deviation so a flat, never-varying signal
	// cannot divide by zero.
	epsilon = 1e-9
)

const hourBuckets = 24

// Config tunes the cold-start policy of a Store.
type Config struct {
	MinSamples       uint64 `yaml:"min_samples"`
	BucketMinSamples uint64 `yaml:"bucket_min_samples"`
}

func (c *Config) ApplyDefaults() {
	if c.MinSamples == 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.BucketMinSamples == 0 {
		c.BucketMinSamples = DefaultBucketMinSamples
	}
}

// Score is the outcome of a deviation query. When Insufficient is set the
// caller must treat the observation as unjudgeable, not as score zero.
type Score struct {
	Value        float64
	Mean         float64
	StdDev       float64
	SampleCount  uint64
	BucketUsed   bool
	Insufficient bool
}

// welford is an incrementally updated mean/variance accumulator. The update
// is O(1) and numerically stable over unbounded sample counts.
type welford struct {
	Count uint64  `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"`
}

func (w *welford) add(v float64) {
	w.Count++
	delta := v - w.Mean
	w.Mean += delta / float64(w.Count)
	w.M2 += delta * (v - w.Mean)
}

func (w *welford) variance() float64 {
	if w.Count == 0 {
		return 0
	}
	return w.M2 / float64(w.Count)
}

func (w *welford) stdDev() float64 {
	return math.Sqrt(w.variance())
}

type entry struct {
	mu      sync.Mutex
	All     welford              `json:"all"`
	Buckets [hourBuckets]welford `json:"buckets"`
}

// Store owns all baseline state: one rolling summary per (entity, signal)
// pair, O(1) memory per pair. It is the only component that mutates
// baselines; everything else consumes derived scores. Concurrent Update and
// Deviation calls for different keys proceed without contention.
type Store struct {
	cfg Config

	mu      sync.RWMutex
	entries map[string]*entry
}

func NewStore(cfg Config) *Store {
	cfg.ApplyDefaults()
	return &Store{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

func key(entityKey, signal string) string {
	return entityKey + "\x1f" + signal
}

func (s *Store) entryFor(k string) *entry {
	s.mu.RLock()
	e, ok := s.entries[k]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[k]; ok {
		return e
	}
	e = &entry{}
	s.entries[k] = e
	return e
}

// Update folds an observation into the all-time summary and the matching
// hour-of-day bucket.
func (s *Store) Update(obs domain.Observation) {
	e := s.entryFor(key(obs.Entity, obs.Signal))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.All.add(obs.Value)
	e.Buckets[obs.Timestamp.UTC().Hour()].add(obs.Value)
}

// Deviation scores value against the baseline for (entity, signal) at the
// given time of day. The hour bucket is preferred; an immature bucket falls
// back to the all-time summary; an immature all-time summary yields an
// insufficient-data score.
func (s *Store) Deviation(entityKey, signal string, value float64, ts time.Time) Score {
	e := s.entryFor(key(entityKey, signal))
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := &e.Buckets[ts.UTC().Hour()]
	bucketUsed := true
	if stats.Count < s.cfg.BucketMinSamples {
		stats = &e.All
		bucketUsed = false
	}
	if e.All.Count < s.cfg.MinSamples {
		return Score{Insufficient: true, SampleCount: e.All.Count}
	}

	sd := stats.stdDev()
	return Score{
		Value:       (value - stats.Mean) / math.Max(sd, epsilon),
		Mean:        stats.Mean,
		StdDev:      sd,
		SampleCount: stats.Count,
		BucketUsed:  bucketUsed,
	}
}

// SampleCount returns the all-time sample count for a pair, zero when the
// pair has never been observed.
func (s *Store) SampleCount(entityKey, signal string) uint64 {
	s.mu.RLock()
	e, ok := s.entries[key(entityKey, signal)]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.All.Count
}

// Len returns the number of tracked (entity, signal) pairs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

type snapshotEntry struct {
	Entity  string               `json:"entity"`
	Signal  string               `json:"signal"`
	All     welford              `json:"all"`
	Buckets [hourBuckets]welford `json:"buckets"`
}

// Snapshot serializes every baseline for the snapshot store.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]snapshotEntry, 0, len(s.entries))
	for k, e := range s.entries {
		entityKey, signal, ok := splitKey(k)
		if !ok {
			continue
		}
		e.mu.Lock()
		out = append(out, snapshotEntry{Entity: entityKey, Signal: signal, All: e.All, Buckets: e.Buckets})
		e.mu.Unlock()
	}
	return json.Marshal(out)
}

// Restore replaces the store contents with a previously taken snapshot.
func (s *Store) Restore(data []byte) error {
	var in []snapshotEntry
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("baseline snapshot decode: %w", err)
	}

	entries := make(map[string]*entry, len(in))
	for _, se := range in {
		entries[key(se.Entity, se.Signal)] = &entry{All: se.All, Buckets: se.Buckets}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

func splitKey(k string) (entityKey, signal string, ok bool) {
	for i := 0; i < len(k); i++ {
		if k[i] == '\x1f' {
			return k[:i], k[i+1:], true
		}
	}
	return "", "", false
}

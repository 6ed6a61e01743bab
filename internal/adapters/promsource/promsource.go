package promsource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

// entityPlaceholder is substituted into signal queries with the entity key.
const entityPlaceholder = "$entity"

// SignalConfig maps one tracked signal onto a PromQL template. The template
// must contain the $entity placeholder.
type SignalConfig struct {
	Name         string        `yaml:"name"`
	Query        string        `yaml:"query"`
	Unit         string        `yaml:"unit"`
	Monotonicity string        `yaml:"monotonicity"`
	Step         time.Duration `yaml:"step"`
}

// Config captures the details required to query a Prometheus server.
type Config struct {
	Addr           string         `yaml:"addr"`
	DiscoveryQuery string         `yaml:"discovery_query"`
	EntityLabel    string         `yaml:"entity_label"`
	TierLabel      string         `yaml:"tier_label"`
	Signals        []SignalConfig `yaml:"signals"`
}

func (c *Config) ApplyDefaults() {
	if c.DiscoveryQuery == "" {
		c.DiscoveryQuery = "up"
	}
	if c.EntityLabel == "" {
		c.EntityLabel = "job"
	}
	for i := range c.Signals {
		if c.Signals[i].Step <= 0 {
			c.Signals[i].Step = 30 * time.Second
		}
		if c.Signals[i].Monotonicity == "" {
			c.Signals[i].Monotonicity = string(domain.MonotonicityFree)
		}
	}
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if len(c.Signals) == 0 {
		return errors.New("at least one signal must be configured")
	}
	for _, sig := range c.Signals {
		if sig.Name == "" {
			return errors.New("signal name is required")
		}
		if !strings.Contains(sig.Query, entityPlaceholder) {
			return fmt.Errorf("signal %q query must contain %s", sig.Name, entityPlaceholder)
		}
	}
	return nil
}

// Source implements the metrics-query port over the Prometheus HTTP API.
type Source struct {
	cfg Config
	api promv1.API
	now func() time.Time
}

func New(cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := api.NewClient(api.Config{Address: cfg.Addr})
	if err != nil {
		return nil, fmt.Errorf("prometheus client: %w", err)
	}
	return &Source{cfg: cfg, api: promv1.NewAPI(client), now: time.Now}, nil
}

func (s *Source) Name() string { return "prometheus" }

func (s *Source) Signals() []domain.Signal {
	out := make([]domain.Signal, 0, len(s.cfg.Signals))
	for _, sig := range s.cfg.Signals {
		out = append(out, domain.Signal{
			Name:         sig.Name,
			Unit:         sig.Unit,
			Monotonicity: domain.Monotonicity(sig.Monotonicity),
		})
	}
	return out
}

// ListEntities runs the discovery query and keys entities by the configured
// label. Duplicate label values collapse into one entity.
func (s *Source) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	val, _, err := s.api.Query(ctx, s.cfg.DiscoveryQuery, s.now())
	if err != nil {
		return nil, unavailable("discovery query", err)
	}
	vec, ok := val.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("discovery query %q: expected instant vector, got %s", s.cfg.DiscoveryQuery, val.Type())
	}

	seen := make(map[string]domain.Entity, len(vec))
	for _, sample := range vec {
		key := string(sample.Metric[model.LabelName(s.cfg.EntityLabel)])
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		ent := domain.Entity{Key: key}
		if s.cfg.TierLabel != "" {
			ent.Tier = string(sample.Metric[model.LabelName(s.cfg.TierLabel)])
		}
		seen[key] = ent
	}

	out := make([]domain.Entity, 0, len(seen))
	for _, ent := range seen {
		out = append(out, ent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Fetch evaluates the signal's query template over [now-lookback, now] and
// flattens the first returned series into observations, oldest first.
func (s *Source) Fetch(ctx context.Context, entity domain.Entity, signal domain.Signal, lookback time.Duration) ([]domain.Observation, error) {
	cfg, ok := s.signalConfig(signal.Name)
	if !ok {
		return nil, fmt.Errorf("signal %q is not configured for the prometheus source", signal.Name)
	}

	end := s.now()
	query := strings.ReplaceAll(cfg.Query, entityPlaceholder, entity.Key)
	val, _, err := s.api.QueryRange(ctx, query, promv1.Range{
		Start: end.Add(-lookback),
		End:   end,
		Step:  cfg.Step,
	})
	if err != nil {
		return nil, unavailable(fmt.Sprintf("range query for %s/%s", entity.Key, signal.Name), err)
	}

	mat, ok := val.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("query %q: expected range vector, got %s", query, val.Type())
	}
	if len(mat) == 0 {
		return nil, nil
	}

	stream := mat[0]
	out := make([]domain.Observation, 0, len(stream.Values))
	for _, pair := range stream.Values {
		out = append(out, domain.Observation{
			Entity:    entity.Key,
			Signal:    signal.Name,
			Timestamp: pair.Timestamp.Time(),
			Value:     float64(pair.Value),
		})
	}
	return out, nil
}

func (s *Source) signalConfig(name string) (SignalConfig, bool) {
	for _, sig := range s.cfg.Signals {
		if sig.Name == name {
			return sig, true
		}
	}
	return SignalConfig{}, false
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: prometheus %s: %v", ports.ErrSourceUnavailable, op, err)
}

var _ ports.MetricsSource = (*Source)(nil)

package influxsource

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

// SignalConfig maps one tracked signal onto an InfluxDB field.
type SignalConfig struct {
	Name         string `yaml:"name"`
	Field        string `yaml:"field"`
	Unit         string `yaml:"unit"`
	Monotonicity string `yaml:"monotonicity"`
}

// Config captures the details required to query an InfluxDB 2.x bucket.
type Config struct {
	URL         string         `yaml:"url"`
	Token       string         `yaml:"token"`
	Org         string         `yaml:"org"`
	Bucket      string         `yaml:"bucket"`
	Measurement string         `yaml:"measurement"`
	EntityTag   string         `yaml:"entity_tag"`
	Discovery   time.Duration  `yaml:"discovery_lookback"`
	Signals     []SignalConfig `yaml:"signals"`
}

func (c *Config) ApplyDefaults() {
	if c.EntityTag == "" {
		c.EntityTag = "service"
	}
	if c.Discovery <= 0 {
		c.Discovery = 24 * time.Hour
	}
	for i := range c.Signals {
		if c.Signals[i].Field == "" {
			c.Signals[i].Field = c.Signals[i].Name
		}
		if c.Signals[i].Monotonicity == "" {
			c.Signals[i].Monotonicity = string(domain.MonotonicityFree)
		}
	}
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if c.Org == "" || c.Bucket == "" {
		return errors.New("org and bucket are required")
	}
	if c.Measurement == "" {
		return errors.New("measurement is required")
	}
	if len(c.Signals) == 0 {
		return errors.New("at least one signal must be configured")
	}
	return nil
}

// Source implements the metrics-query port over the InfluxDB Flux API.
type Source struct {
	cfg    Config
	client influxdb2.Client
	query  api.QueryAPI
}

func New(cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Source{
		cfg:    cfg,
		client: client,
		query:  client.QueryAPI(cfg.Org),
	}, nil
}

// Close releases the underlying HTTP client.
func (s *Source) Close() {
	s.client.Close()
}

func (s *Source) Name() string { return "influxdb" }

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

// ListEntities discovers entity keys from the distinct values of the entity
// tag within the discovery lookback.
func (s *Source) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	flux := fmt.Sprintf(`import "influxdata/influxdb/schema"
schema.tagValues(bucket: %q, tag: %q, start: -%s)`,
		s.cfg.Bucket, s.cfg.EntityTag, fluxDuration(s.cfg.Discovery))

	result, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, unavailable("tag discovery", err)
	}
	defer result.Close()

	var out []domain.Entity
	for result.Next() {
		key, ok := result.Record().Value().(string)
		if !ok || key == "" {
			continue
		}
		out = append(out, domain.Entity{Key: key})
	}
	if err := result.Err(); err != nil {
		return nil, unavailable("tag discovery", err)
	}
	return out, nil
}

// Fetch pulls the signal's field for one entity over the lookback, oldest
// first (Flux range output is already time-ascending per table).
func (s *Source) Fetch(ctx context.Context, entity domain.Entity, signal domain.Signal, lookback time.Duration) ([]domain.Observation, error) {
	cfg, ok := s.signalConfig(signal.Name)
	if !ok {
		return nil, fmt.Errorf("signal %q is not configured for the influxdb source", signal.Name)
	}

	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%s)
  |> filter(fn: (r) => r._measurement == %q and r[%q] == %q and r._field == %q)
  |> sort(columns: ["_time"])`,
		s.cfg.Bucket, fluxDuration(lookback), s.cfg.Measurement, s.cfg.EntityTag, entity.Key, cfg.Field)

	result, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("query for %s/%s", entity.Key, signal.Name), err)
	}
	defer result.Close()

	var out []domain.Observation
	for result.Next() {
		rec := result.Record()
		v, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		out = append(out, domain.Observation{
			Entity:    entity.Key,
			Signal:    signal.Name,
			Timestamp: rec.Time(),
			Value:     v,
		})
	}
	if err := result.Err(); err != nil {
		return nil, unavailable(fmt.Sprintf("query for %s/%s", entity.Key, signal.Name), err)
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

func fluxDuration(d time.Duration) string {
	return fmt.Sprintf("%ds", int64(d.Seconds()))
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: influxdb %s: %v", ports.ErrSourceUnavailable, op, err)
}

var _ ports.MetricsSource = (*Source)(nil)

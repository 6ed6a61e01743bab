package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Nordvei/ifp-edge/internal/adapters/influxsource"
	"github.com/Nordvei/ifp-edge/internal/adapters/opcuasource"
	"github.com/Nordvei/ifp-edge/internal/adapters/promsource"
	"github.com/Nordvei/ifp-edge/internal/adapters/sink"
	"github.com/Nordvei/ifp-edge/internal/adapters/walletsource"
	"github.com/Nordvei/ifp-edge/internal/app/agent"
	"github.com/Nordvei/ifp-edge/internal/app/baseline"
	"github.com/Nordvei/ifp-edge/internal/app/classify"
	"github.com/Nordvei/ifp-edge/internal/app/predict"
)

type Config struct {
	Agent      agent.Config    `yaml:"agent"`
	Baseline   baseline.Config `yaml:"baseline"`
	Classifier classify.Config `yaml:"classifier"`
	Depletion  predict.Config  `yaml:"depletion"`
	Sources    SourcesConfig   `yaml:"sources"`
	Sinks      SinksConfig     `yaml:"sinks"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Snapshot   SnapshotConfig  `yaml:"snapshot"`
}

// SourcesConfig enables one adapter per non-nil section. At least one must
// be configured.
type SourcesConfig struct {
	Prometheus *promsource.Config   `yaml:"prometheus"`
	InfluxDB   *influxsource.Config `yaml:"influxdb"`
	Wallet     *walletsource.Config `yaml:"wallet"`
	OPCUA      *opcuasource.Config  `yaml:"opcua"`
}

// SinksConfig enables delivery channels. The structured log sink is always
// on; these add to it.
type SinksConfig struct {
	Slack    *sink.SlackConfig `yaml:"slack"`
	Postgres *PostgresConfig   `yaml:"postgres"`
}

type PostgresConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// SnapshotConfig controls baseline persistence across restarts.
type SnapshotConfig struct {
	Path        string `yaml:"path"`
	EveryCycles int    `yaml:"every_cycles"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Agent.ApplyDefaults()
	c.Baseline.ApplyDefaults()
	c.Classifier.ApplyDefaults()
	c.Depletion.ApplyDefaults()

	if c.Sources.Prometheus != nil {
		c.Sources.Prometheus.ApplyDefaults()
	}
	if c.Sources.InfluxDB != nil {
		c.Sources.InfluxDB.ApplyDefaults()
	}
	if c.Sources.Wallet != nil {
		c.Sources.Wallet.ApplyDefaults()
	}
	if c.Sources.OPCUA != nil {
		c.Sources.OPCUA.ApplyDefaults()
	}
	if c.Sinks.Slack != nil {
		c.Sinks.Slack.ApplyDefaults()
	}
	if c.Sinks.Postgres != nil && c.Sinks.Postgres.Table == "" {
		c.Sinks.Postgres.Table = "agent_events"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = "./data/baselines.json"
	}
	if c.Snapshot.EveryCycles <= 0 {
		c.Snapshot.EveryCycles = 10
	}
}

func (c *Config) validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent config: %w", err)
	}
	if err := c.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier config: %w", err)
	}
	if err := c.Depletion.Validate(); err != nil {
		return fmt.Errorf("depletion config: %w", err)
	}

	enabled := 0
	if c.Sources.Prometheus != nil {
		enabled++
		if err := c.Sources.Prometheus.Validate(); err != nil {
			return fmt.Errorf("prometheus source: %w", err)
		}
	}
	if c.Sources.InfluxDB != nil {
		enabled++
		if err := c.Sources.InfluxDB.Validate(); err != nil {
			return fmt.Errorf("influxdb source: %w", err)
		}
	}
	if c.Sources.Wallet != nil {
		enabled++
		if err := c.Sources.Wallet.Validate(); err != nil {
			return fmt.Errorf("wallet source: %w", err)
		}
	}
	if c.Sources.OPCUA != nil {
		enabled++
		if err := c.Sources.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua source: %w", err)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be configured")
	}

	if c.Sinks.Slack != nil {
		if err := c.Sinks.Slack.Validate(); err != nil {
			return fmt.Errorf("slack sink: %w", err)
		}
	}
	if c.Sinks.Postgres != nil && c.Sinks.Postgres.ConnString == "" {
		return fmt.Errorf("postgres sink: conn_string is required")
	}
	return nil
}

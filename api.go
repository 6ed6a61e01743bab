package ifpedge

import (
	base "github.com/Nordvei/ifp-edge/pkg/ifpedge"
)

// Re-exported errors for convenience.
var ErrSourceUnavailable = base.ErrSourceUnavailable

// Type aliases so consumers can import github.com/Nordvei/ifp-edge directly.
type (
	Config                 = base.Config
	AgentConfig            = base.AgentConfig
	CorrelationConfig      = base.CorrelationConfig
	BaselineConfig         = base.BaselineConfig
	ClassifierConfig       = base.ClassifierConfig
	DepletionConfig        = base.DepletionConfig
	SourcesConfig          = base.SourcesConfig
	SinksConfig            = base.SinksConfig
	PrometheusConfig       = base.PrometheusConfig
	PrometheusSignalConfig = base.PrometheusSignalConfig
	InfluxConfig           = base.InfluxConfig
	WalletConfig           = base.WalletConfig
	OPCUAConfig            = base.OPCUAConfig
	SlackConfig            = base.SlackConfig
	PostgresConfig         = base.PostgresConfig
	MetricsConfig          = base.MetricsConfig
	SnapshotConfig         = base.SnapshotConfig
	Runtime                = base.Runtime
	RuntimeOption          = base.RuntimeOption
	Entity                 = base.Entity
	Signal                 = base.Signal
	Observation            = base.Observation
	Verdict                = base.Verdict
	DepletionEstimate      = base.DepletionEstimate
	Event                  = base.Event
	CycleReport            = base.CycleReport
	MetricsSource          = base.MetricsSource
	ActionSink             = base.ActionSink
	Observability          = base.Observability
	Field                  = base.Field
	SnapshotStore          = base.SnapshotStore
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithMetricsSource(src MetricsSource) RuntimeOption {
	return base.WithMetricsSource(src)
}

func WithActionSink(s ActionSink) RuntimeOption {
	return base.WithActionSink(s)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithSnapshotStore(st SnapshotStore) RuntimeOption {
	return base.WithSnapshotStore(st)
}

package ifpedge

import (
	"github.com/Nordvei/ifp-edge/internal/adapters/influxsource"
	"github.com/Nordvei/ifp-edge/internal/adapters/opcuasource"
	"github.com/Nordvei/ifp-edge/internal/adapters/promsource"
	"github.com/Nordvei/ifp-edge/internal/adapters/sink"
	"github.com/Nordvei/ifp-edge/internal/adapters/walletsource"
	"github.com/Nordvei/ifp-edge/internal/app/agent"
	"github.com/Nordvei/ifp-edge/internal/app/baseline"
	"github.com/Nordvei/ifp-edge/internal/app/classify"
	"github.com/Nordvei/ifp-edge/internal/app/predict"
	"github.com/Nordvei/ifp-edge/internal/app/config"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// AgentConfig is the decision-loop policy (interval, timeouts, cooldown).
	AgentConfig = agent.Config
	// CorrelationConfig tunes fleet-wide drain detection.
	CorrelationConfig = agent.CorrelationConfig
	// BaselineConfig tunes the rolling statistical baselines.
	BaselineConfig = baseline.Config
	// ClassifierConfig holds the deviation-to-severity thresholds.
	ClassifierConfig = classify.Config
	// DepletionConfig tunes the time-to-empty predictor.
	DepletionConfig = predict.Config
	// SourcesConfig enables telemetry adapters.
	SourcesConfig = config.SourcesConfig
	// SinksConfig enables delivery channels.
	SinksConfig = config.SinksConfig
	// PrometheusConfig configures the Prometheus query source.
	PrometheusConfig = promsource.Config
	// PrometheusSignalConfig binds a tracked signal to a PromQL template.
	PrometheusSignalConfig = promsource.SignalConfig
	// InfluxConfig configures the InfluxDB Flux source.
	InfluxConfig = influxsource.Config
	// WalletConfig configures the wallet balance source.
	WalletConfig = walletsource.Config
	// OPCUAConfig configures the facility sensor source.
	OPCUAConfig = opcuasource.Config
	// SlackConfig configures the Slack webhook sink.
	SlackConfig = sink.SlackConfig
	// PostgresConfig configures the Postgres event sink.
	PostgresConfig = config.PostgresConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// SnapshotConfig configures baseline persistence.
	SnapshotConfig = config.SnapshotConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

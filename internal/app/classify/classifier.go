package classify

import (
	"fmt"
	"math"

	"github.com/Nordvei/ifp-edge/internal/app/baseline"
	"github.com/Nordvei/ifp-edge/internal/domain"
)

const (
	// DefaultWatchScore is the |deviation| at which a verdict becomes watch.
	DefaultWatchScore = 2.0
	// DefaultAnomalyScore is the |deviation| at which a verdict becomes anomaly.
	DefaultAnomalyScore = 3.5
)

// Config tunes the deviation-to-severity mapping.
type Config struct {
	WatchScore   float64 `yaml:"watch_score"`
	AnomalyScore float64 `yaml:"anomaly_score"`
}

func (c *Config) ApplyDefaults() {
	if c.WatchScore == 0 {
		c.WatchScore = DefaultWatchScore
	}
	if c.AnomalyScore == 0 {
		c.AnomalyScore = DefaultAnomalyScore
	}
}

func (c *Config) Validate() error {
	if c.WatchScore < 0 || c.AnomalyScore < 0 {
		return fmt.Errorf("classifier thresholds must be >= 0")
	}
	if c.AnomalyScore < c.WatchScore {
		return fmt.Errorf("anomaly_score (%g) must be >= watch_score (%g)", c.AnomalyScore, c.WatchScore)
	}
	return nil
}

// Classifier grades observations against the baseline store. Classification
// always folds the observation back into the store afterwards, so legitimate
// regime shifts eventually become normal again and cold starts end.
type Classifier struct {
	cfg       Config
	baselines *baseline.Store
}

func New(cfg Config, store *baseline.Store) *Classifier {
	cfg.ApplyDefaults()
	return &Classifier{cfg: cfg, baselines: store}
}

// Classify scores one observation and returns a graded verdict. An immature
// baseline yields severity normal with an insufficient-data rationale; the
// update still happens, since that update is what ends the cold start.
func (c *Classifier) Classify(obs domain.Observation) domain.Verdict {
	score := c.baselines.Deviation(obs.Entity, obs.Signal, obs.Value, obs.Timestamp)
	c.baselines.Update(obs)

	v := domain.Verdict{
		Entity:    obs.Entity,
		Signal:    obs.Signal,
		Timestamp: obs.Timestamp,
	}

	if score.Insufficient {
		v.Severity = domain.SeverityNormal
		v.InsufficientData = true
		v.Rationale = fmt.Sprintf("%s=%g: insufficient data (%d samples), baseline still warming up",
			obs.Signal, obs.Value, score.SampleCount)
		return v
	}

	v.Score = score.Value
	v.Severity = c.severityFor(score.Value)

	window := "all-time"
	if score.BucketUsed {
		window = "hour-of-day"
	}
	v.Rationale = fmt.Sprintf("%s=%g deviates %.2fσ from %s baseline mean %.4g (n=%d)",
		obs.Signal, obs.Value, score.Value, window, score.Mean, score.SampleCount)
	return v
}

func (c *Classifier) severityFor(score float64) domain.Severity {
	switch abs := math.Abs(score); {
	case abs >= c.cfg.AnomalyScore:
		return domain.SeverityAnomaly
	case abs >= c.cfg.WatchScore:
		return domain.SeverityWatch
	default:
		return domain.SeverityNormal
	}
}

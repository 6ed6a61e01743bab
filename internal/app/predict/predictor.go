package predict

import (
	"fmt"
	"time"

	"github.com/Nordvei/ifp-edge/internal/domain"
)

const (
	// DefaultAlertThresholdMinutes is the minutes-to-empty below which an
	// estimate turns critical; below 3x it turns warning.
	DefaultAlertThresholdMinutes = 30.0

	// DefaultMinSamples and DefaultMinElapsed guard the drain-rate fit
	// against noisy extrapolation from close-together samples.
	DefaultMinSamples = 2
	DefaultMinElapsed = 5 * time.Minute

	// DefaultMinDrainPerHour ignores tiny drips that would otherwise emit
	// absurdly distant time-to-empty estimates.
	DefaultMinDrainPerHour = 0.0

	// DefaultWindow bounds how much history the fit considers, so the
	// estimate tracks recent behavior and recovers quickly after a refill.
	DefaultWindow     = time.Hour
	DefaultMaxSamples = 120
)

// Config tunes the depletion fit and urgency tiers.
type Config struct {
	AlertThresholdMinutes float64       `yaml:"alert_threshold_minutes"`
	MinSamples            int           `yaml:"min_samples"`
	MinElapsed            time.Duration `yaml:"min_elapsed"`
	MinDrainPerHour       float64       `yaml:"min_drain_per_hour"`
	Window                time.Duration `yaml:"window"`
	MaxSamples            int           `yaml:"max_samples"`
}

func (c *Config) ApplyDefaults() {
	if c.AlertThresholdMinutes == 0 {
		c.AlertThresholdMinutes = DefaultAlertThresholdMinutes
	}
	if c.MinSamples == 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.MinElapsed == 0 {
		c.MinElapsed = DefaultMinElapsed
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.MaxSamples == 0 {
		c.MaxSamples = DefaultMaxSamples
	}
}

func (c *Config) Validate() error {
	if c.AlertThresholdMinutes < 0 {
		return fmt.Errorf("alert_threshold_minutes must be >= 0")
	}
	if c.MinSamples < 2 {
		return fmt.Errorf("min_samples must be >= 2, got %d", c.MinSamples)
	}
	return nil
}

// Predictor estimates time-to-empty for decreasing-monotonic signals from a
// short rolling window. Estimates are ephemeral and recomputed every cycle.
type Predictor struct {
	cfg Config
}

func New(cfg Config) *Predictor {
	cfg.ApplyDefaults()
	return &Predictor{cfg: cfg}
}

// Window returns the lookback the agent should fetch for this predictor.
func (p *Predictor) Window() time.Duration {
	return p.cfg.Window
}

// Predict fits a drain rate over the recent window (oldest first) and grades
// urgency. Too few points, too little elapsed time, or a flat/rising value
// all yield a null estimate with urgency none rather than a noisy guess.
func (p *Predictor) Predict(entity domain.Entity, signal domain.Signal, window []domain.Observation) domain.DepletionEstimate {
	est := domain.DepletionEstimate{
		Entity:  entity.Key,
		Signal:  signal.Name,
		Urgency: domain.UrgencyNone,
	}
	if len(window) == 0 {
		est.Rationale = fmt.Sprintf("%s: no recent samples", signal.Name)
		return est
	}

	window = p.bound(window)
	latest := window[len(window)-1]
	earliest := window[0]
	est.CurrentValue = latest.Value
	est.Timestamp = latest.Timestamp

	elapsed := latest.Timestamp.Sub(earliest.Timestamp)
	if len(window) < p.cfg.MinSamples || elapsed < p.cfg.MinElapsed {
		est.Rationale = fmt.Sprintf("%s=%g: insufficient history for a drain fit (%d samples over %s)",
			signal.Name, latest.Value, len(window), elapsed.Round(time.Second))
		return est
	}

	ratePerHour := (earliest.Value - latest.Value) / elapsed.Hours()
	if ratePerHour <= 0 || ratePerHour < p.cfg.MinDrainPerHour {
		est.Rationale = fmt.Sprintf("%s=%g: not draining (rate %.4g/h over %s)",
			signal.Name, latest.Value, ratePerHour, elapsed.Round(time.Second))
		return est
	}

	minutes := latest.Value / ratePerHour * 60
	est.DrainRatePerHour = &ratePerHour
	est.MinutesToEmpty = &minutes
	est.Urgency = p.urgencyFor(minutes)
	est.Rationale = fmt.Sprintf("%s=%g draining %.4g %s/h, empty in %.0f min",
		signal.Name, latest.Value, ratePerHour, signal.Unit, minutes)
	return est
}

// bound trims the window to the configured lookback and sample cap, keeping
// the newest samples.
func (p *Predictor) bound(window []domain.Observation) []domain.Observation {
	latest := window[len(window)-1].Timestamp
	cutoff := latest.Add(-p.cfg.Window)
	start := 0
	for start < len(window)-1 && window[start].Timestamp.Before(cutoff) {
		start++
	}
	window = window[start:]
	if len(window) > p.cfg.MaxSamples {
		window = window[len(window)-p.cfg.MaxSamples:]
	}
	return window
}

func (p *Predictor) urgencyFor(minutes float64) domain.Urgency {
	switch {
	case minutes < p.cfg.AlertThresholdMinutes:
		return domain.UrgencyCritical
	case minutes < 3*p.cfg.AlertThresholdMinutes:
		return domain.UrgencyWarning
	default:
		return domain.UrgencyNormal
	}
}

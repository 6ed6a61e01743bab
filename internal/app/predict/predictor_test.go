package predict

import (
	"math"
	"testing"
	"time"

	"github.com/Nordvei/ifp-edge/internal/domain"
)

var (
	wallet  = domain.Entity{Key: "wallet:0xabc"}
	balance = domain.Signal{Name: "balance", Unit: "tokens", Monotonicity: domain.MonotonicityDecreasing}
)

func series(t0 time.Time, points ...struct {
	Min float64
	Val float64
}) []domain.Observation {
	out := make([]domain.Observation, 0, len(points))
	for _, p := range points {
		out = append(out, domain.Observation{
			Entity:    wallet.Key,
			Signal:    balance.Name,
			Timestamp: t0.Add(time.Duration(p.Min * float64(time.Minute))),
			Value:     p.Val,
		})
	}
	return out
}

func pt(min, val float64) struct {
	Min float64
	Val float64
} {
	return struct {
		Min float64
		Val float64
	}{min, val}
}

func TestPredictDrainRateAndMinutesToEmpty(t *testing.T) {
	p := New(Config{AlertThresholdMinutes: 30})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 100 at t=0, 90 at t=30min: 20 tokens/hour, (90/20)*60 = 270 minutes.
	est := p.Predict(wallet, balance, series(t0, pt(0, 100), pt(30, 90)))
	if est.DrainRatePerHour == nil || math.Abs(*est.DrainRatePerHour-20) > 1e-9 {
		t.Fatalf("expected drain rate 20/h, got %+v", est.DrainRatePerHour)
	}
	if est.MinutesToEmpty == nil || math.Abs(*est.MinutesToEmpty-270) > 1e-9 {
		t.Fatalf("expected 270 minutes to empty, got %+v", est.MinutesToEmpty)
	}
	// 270 >= 3*30, so this is still normal.
	if est.Urgency != domain.UrgencyNormal {
		t.Fatalf("expected urgency normal at 270 min, got %s", est.Urgency)
	}
}

func TestPredictUrgencyBoundaries(t *testing.T) {
	p := New(Config{AlertThresholdMinutes: 30})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		latest  float64
		urgency domain.Urgency
	}{
		// Rate is fixed at 20/h by the first two points; latest value sets TTE.
		{"below threshold", 5, domain.UrgencyCritical},    // 15 min
		{"exactly threshold", 10, domain.UrgencyWarning},  // 30 min, not < 30
		{"below 3x", 20, domain.UrgencyWarning},           // 60 min
		{"exactly 3x", 30, domain.UrgencyNormal},          // 90 min, not < 90
		{"far out", 100, domain.UrgencyNormal},            // 300 min
	}

	for _, tc := range cases {
		window := series(t0, pt(0, tc.latest+10), pt(30, tc.latest))
		est := p.Predict(wallet, balance, window)
		if est.MinutesToEmpty == nil {
			t.Fatalf("%s: expected an estimate, got null", tc.name)
		}
		if est.Urgency != tc.urgency {
			t.Fatalf("%s: tte=%.0f expected %s, got %s", tc.name, *est.MinutesToEmpty, tc.urgency, est.Urgency)
		}
	}
}

func TestPredictFlatBalanceIsNull(t *testing.T) {
	p := New(Config{})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	est := p.Predict(wallet, balance, series(t0, pt(0, 100), pt(30, 100)))
	if est.MinutesToEmpty != nil {
		t.Fatalf("expected null minutes-to-empty for a flat balance, got %f", *est.MinutesToEmpty)
	}
	if est.Urgency != domain.UrgencyNone {
		t.Fatalf("expected urgency none, got %s", est.Urgency)
	}
}

func TestPredictRefillIsNull(t *testing.T) {
	p := New(Config{})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	est := p.Predict(wallet, balance, series(t0, pt(0, 100), pt(30, 500)))
	if est.MinutesToEmpty != nil || est.Urgency != domain.UrgencyNone {
		t.Fatalf("expected null estimate after a refill, got %+v", est)
	}
}

func TestPredictTooFewPoints(t *testing.T) {
	p := New(Config{})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	est := p.Predict(wallet, balance, series(t0, pt(0, 100)))
	if est.MinutesToEmpty != nil || est.Urgency != domain.UrgencyNone {
		t.Fatalf("expected null estimate from a single point, got %+v", est)
	}
}

func TestPredictTooLittleElapsed(t *testing.T) {
	p := New(Config{MinElapsed: 5 * time.Minute})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Two samples 30 seconds apart must not produce an extrapolation.
	est := p.Predict(wallet, balance, series(t0, pt(0, 100), pt(0.5, 99)))
	if est.MinutesToEmpty != nil || est.Urgency != domain.UrgencyNone {
		t.Fatalf("expected null estimate from close-together samples, got %+v", est)
	}
}

func TestPredictMinDrainFloor(t *testing.T) {
	p := New(Config{MinDrainPerHour: 50})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 20/h is a real drain but below the configured floor.
	est := p.Predict(wallet, balance, series(t0, pt(0, 100), pt(30, 90)))
	if est.MinutesToEmpty != nil || est.Urgency != domain.UrgencyNone {
		t.Fatalf("expected drip below floor to be ignored, got %+v", est)
	}
}

func TestPredictWindowRecoversAfterRefill(t *testing.T) {
	p := New(Config{Window: time.Hour})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Old pre-refill history is outside the window; only the fresh drain
	// from 1000 should drive the fit.
	window := series(t0,
		pt(-180, 50), pt(-150, 20), // old, nearly empty
		pt(0, 1000), pt(30, 990),
	)
	est := p.Predict(wallet, balance, window)
	if est.DrainRatePerHour == nil {
		t.Fatalf("expected an estimate, got null: %+v", est)
	}
	if math.Abs(*est.DrainRatePerHour-20) > 1e-9 {
		t.Fatalf("expected post-refill rate 20/h, got %f", *est.DrainRatePerHour)
	}
}

func TestPredictEmptyWindow(t *testing.T) {
	p := New(Config{})
	est := p.Predict(wallet, balance, nil)
	if est.Urgency != domain.UrgencyNone || est.MinutesToEmpty != nil {
		t.Fatalf("expected null estimate for empty window, got %+v", est)
	}
}

package ports

import (
	"context"
	"errors"
	"time"

	"github.com/Nordvei/ifp-edge/internal/domain"
)

// ErrSourceUnavailable marks a metrics or balance backend that cannot be
// reached or timed out. The agent skips the affected entity for the cycle;
// it is never fatal to the loop.
var ErrSourceUnavailable = errors.New("ifp-edge: source unavailable")

// MetricsSource is the pull interface over an external telemetry store.
// Fetch returns observations ordered oldest first, bounded by lookback.
// Implementations must honor ctx so a hung backend cannot stall the loop.
type MetricsSource interface {
	ListEntities(ctx context.Context) ([]domain.Entity, error)
	Fetch(ctx context.Context, entity domain.Entity, signal domain.Signal, lookback time.Duration) ([]domain.Observation, error)
	Signals() []domain.Signal
	Name() string
}

package ports

import (
	"context"

	"github.com/Nordvei/ifp-edge/internal/domain"
)

// ActionSink receives alert-worthy events at the end of a cycle. A returned
// error is logged as a delivery failure and never retried by the agent.
type ActionSink interface {
	Emit(ctx context.Context, ev domain.Event) error
	Name() string
}

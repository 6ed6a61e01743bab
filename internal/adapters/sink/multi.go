package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nordvei/ifp-edge/internal/domain"
	"github.com/Nordvei/ifp-edge/internal/ports"
)

// MultiSink fans one event out to every configured sink. Each sink is
// attempted even when an earlier one fails, so a broken webhook never
// blocks the database record or the log line.
type MultiSink struct {
	sinks []ports.ActionSink
}

func NewMultiSink(sinks ...ports.ActionSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Name() string { return "multi" }

func (m *MultiSink) Emit(ctx context.Context, ev domain.Event) error {
	var errs error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, ev); err != nil {
			errs = errors.Join(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	return errs
}

var _ ports.ActionSink = (*MultiSink)(nil)

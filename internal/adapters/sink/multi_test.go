package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/Nordvei/ifp-edge/internal/domain"
)

type recordingSink struct {
	name   string
	events []domain.Event
	err    error
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Emit(ctx context.Context, ev domain.Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestMultiSinkFansOut(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	m := NewMultiSink(a, b)

	ev := domain.Event{Kind: domain.EventAnomaly, Entity: "api"}
	if err := m.Emit(context.Background(), ev); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both sinks to receive the event")
	}
}

func TestMultiSinkFailureDoesNotBlockOthers(t *testing.T) {
	boom := errors.New("webhook down")
	a := &recordingSink{name: "a", err: boom}
	b := &recordingSink{name: "b"}
	m := NewMultiSink(a, b)

	err := m.Emit(context.Background(), domain.Event{Kind: domain.EventDepletion})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap the sink failure, got %v", err)
	}
	if len(b.events) != 1 {
		t.Fatalf("second sink must still receive the event after the first fails")
	}
}

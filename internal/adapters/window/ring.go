package window

import (
	"sync"
	"time"

	"github.com/Nordvei/ifp-edge/internal/domain"
)

// Ring is a bounded, FIFO buffer of observations for one (entity, signal)
// pair. Push-style sources (OPC UA subscriptions, polled wallet balances)
// buffer into a Ring so the agent's pull-based Fetch can serve a recent
// window without the source keeping unbounded history.
type Ring struct {
	mu   sync.Mutex
	data []domain.Observation
	cap  int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		data: make([]domain.Observation, 0, capacity),
		cap:  capacity,
	}
}

// Push appends an observation, evicting the oldest when full.
func (r *Ring) Push(obs domain.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.data) >= r.cap {
		r.data = append(r.data[:0], r.data[1:]...)
	}
	r.data = append(r.data, obs)
}

// Since returns a copy of the buffered observations at or after cutoff,
// oldest first.
func (r *Ring) Since(cutoff time.Time) []domain.Observation {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := len(r.data)
	for i, obs := range r.data {
		if !obs.Timestamp.Before(cutoff) {
			start = i
			break
		}
	}
	if start == len(r.data) {
		return nil
	}
	out := make([]domain.Observation, len(r.data)-start)
	copy(out, r.data[start:])
	return out
}

// Len returns the number of buffered observations.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

package matchmaker

import (
	"context"
	"fmt"

	"github.com/oggyb/anon-relay/internal/domain"
	"github.com/oggyb/anon-relay/internal/events"
)

// CounterReader reads event totals, e.g. the Redis counters fed by
// events.Counter.
type CounterReader interface {
	Counters(ctx context.Context, names ...string) (map[string]int64, error)
}

// Stats is the operator view of the relay.
type Stats struct {
	Users  map[domain.Status]int64
	Events map[string]int64
}

// Stats counts users per status and, when counters are configured, lifecycle
// events.
func (m *Matchmaker) Stats(ctx context.Context) (Stats, error) {
	users, err := m.store.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count users: %w", err)
	}
	s := Stats{Users: users, Events: map[string]int64{}}
	if m.counters == nil {
		return s, nil
	}

	names := make([]string, len(events.AllTypes))
	for i, t := range events.AllTypes {
		names[i] = string(t)
	}
	counts, err := m.counters.Counters(ctx, names...)
	if err != nil {
		// user totals are still useful without event counters
		m.log.Warn("event counters unavailable", "err", err)
		return s, nil
	}
	s.Events = counts
	return s, nil
}

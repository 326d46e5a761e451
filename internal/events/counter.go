package events

import "context"

// Incrementer is the subset of the Redis cache used for counters.
type Incrementer interface {
	IncrCounter(ctx context.Context, name string) (int64, error)
}

// Counter turns events into per-type counters.
type Counter struct {
	store Incrementer
}

func NewCounter(store Incrementer) *Counter {
	return &Counter{store: store}
}

func (c *Counter) Publish(ctx context.Context, e Event) error {
	_, err := c.store.IncrCounter(ctx, string(e.Type))
	return err
}

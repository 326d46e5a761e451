package events

import (
	"context"
	"errors"
	"time"
)

type Type string

const (
	Registered  Type = "registered"
	Matched     Type = "matched"
	Ended       Type = "ended"
	Relayed     Type = "relayed"
	Unreachable Type = "unreachable"
)

// AllTypes lists every event type, in reporting order.
var AllTypes = []Type{Registered, Matched, Ended, Relayed, Unreachable}

// Event is a pairing lifecycle notification. It never carries chat content.
type Event struct {
	Type      Type      `json:"type"`
	UserID    int64     `json:"user_id"`
	PartnerID int64     `json:"partner_id,omitempty"`
	At        time.Time `json:"at"`
}

// New stamps an event with the current time.
func New(t Type, userID, partnerID int64) Event {
	return Event{Type: t, UserID: userID, PartnerID: partnerID, At: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

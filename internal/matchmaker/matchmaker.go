package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oggyb/anon-relay/internal/domain"
	"github.com/oggyb/anon-relay/internal/events"
	"github.com/oggyb/anon-relay/internal/repository"
)

// defaultMatchAttempts bounds how many candidates one FindPartner call tries
// when it keeps losing pairing races.
const defaultMatchAttempts = 5

// Matchmaker applies the idle → searching → chatting transitions against a
// UserStore and tells the Transport what to send. It holds no per-user state.
type Matchmaker struct {
	store     repository.UserStore
	transport Transport
	events    events.Publisher
	counters  CounterReader
	log       *slog.Logger

	maxAttempts int
}

type Option func(*Matchmaker)

// WithEvents publishes pairing lifecycle events.
func WithEvents(p events.Publisher) Option {
	return func(m *Matchmaker) { m.events = p }
}

// WithCounters enables event totals in Stats.
func WithCounters(c CounterReader) Option {
	return func(m *Matchmaker) { m.counters = c }
}

func WithMatchAttempts(n int) Option {
	return func(m *Matchmaker) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

func New(store repository.UserStore, transport Transport, log *slog.Logger, opts ...Option) *Matchmaker {
	m := &Matchmaker{
		store:       store,
		transport:   transport,
		events:      events.Nop{},
		log:         log,
		maxAttempts: defaultMatchAttempts,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start greets a user: the main menu for registered users, the gender prompt
// for everyone else.
func (m *Matchmaker) Start(ctx context.Context, id int64) error {
	_, err := m.store.Get(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		m.send(ctx, id, Reply{Text: msgWelcome, Keyboard: GenderKeyboard})
		return nil
	case err != nil:
		return fmt.Errorf("start %d: %w", id, err)
	}
	m.showMenu(ctx, id)
	return nil
}

// IsRegistered reports whether a record exists for id.
func (m *Matchmaker) IsRegistered(ctx context.Context, id int64) (bool, error) {
	_, err := m.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Register creates the user from a gender selection. An unrecognized
// selection re-prompts without touching the store; existing users go straight
// to the menu.
func (m *Matchmaker) Register(ctx context.Context, id int64, name, genderInput string) error {
	gender, err := domain.ParseGender(genderInput)
	if err != nil {
		m.send(ctx, id, Reply{Text: msgGenderRetry, Keyboard: GenderKeyboard})
		return nil
	}

	created, err := m.store.Register(ctx, domain.Profile{ID: id, DisplayName: name, Gender: gender})
	if err != nil {
		return fmt.Errorf("register %d: %w", id, err)
	}
	if !created {
		m.showMenu(ctx, id)
		return nil
	}

	m.log.Info("user registered", "user_id", id, "gender", gender)
	m.publish(ctx, events.New(events.Registered, id, 0))
	m.send(ctx, id, Reply{Text: msgRegistered(gender) + "\n" + msgMainMenu, Keyboard: MainKeyboard})
	return nil
}

// ShowProfile replies with the caller's display name and gender.
func (m *Matchmaker) ShowProfile(ctx context.Context, id int64) error {
	u, err := m.caller(ctx, id)
	if u == nil {
		return err
	}
	m.send(ctx, id, Reply{Text: msgProfile(u)})
	return nil
}

// FindPartner marks the caller searching and tries to pair it with any other
// searching user.
//
// Behavior:
//   - Candidate found → both become chatting with each other, both notified.
//   - No candidate → caller stays searching and gets the wait notice. It is
//     paired later only when another user's FindPartner discovers it.
//   - Lost race for a candidate → caller is reloaded; if a concurrent searcher
//     already paired it the call ends, otherwise the next candidate is tried.
//   - Paired by someone else between the load and the mark → the pairing is
//     kept and the call ends.
func (m *Matchmaker) FindPartner(ctx context.Context, id int64) error {
	u, err := m.caller(ctx, id)
	if u == nil {
		return err
	}
	if u.State.IsChatting() {
		m.send(ctx, id, Reply{Text: msgAlreadyChatting})
		return nil
	}
	return m.search(ctx, id)
}

func (m *Matchmaker) search(ctx context.Context, id int64) error {
	err := m.store.SetStateUnlessChatting(ctx, id, domain.Searching())
	if errors.Is(err, repository.ErrConflict) {
		// paired since it was loaded, by a searcher who notified both sides
		m.log.Debug("search skipped, already paired", "user_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark %d searching: %w", id, err)
	}
	m.send(ctx, id, Reply{Text: msgSearching, RemoveKeyboard: true})

	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		candidate, err := m.store.FindOneSearching(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			break
		}
		if err != nil {
			return fmt.Errorf("find partner for %d: %w", id, err)
		}

		err = m.store.Pair(ctx, id, candidate.ID)
		if err == nil {
			m.log.Info("users paired", "user_id", id, "partner_id", candidate.ID)
			m.publish(ctx, events.New(events.Matched, id, candidate.ID))
			m.send(ctx, id, Reply{Text: msgPartnerFound})
			m.send(ctx, candidate.ID, Reply{Text: msgPartnerFound, RemoveKeyboard: true})
			return nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("pair %d with %d: %w", id, candidate.ID, err)
		}

		m.log.Debug("pairing race lost", "user_id", id, "candidate_id", candidate.ID, "attempt", attempt+1)
		me, err := m.store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("reload %d: %w", id, err)
		}
		if !me.State.IsSearching() {
			// paired by a concurrent searcher, who notified both sides
			return nil
		}
	}

	m.send(ctx, id, Reply{Text: msgWaiting})
	return nil
}

// Relay forwards content to the caller's partner.
//
// Behavior:
//   - Chatting → content forwarded unchanged. If the partner is unreachable the
//     caller is told and both sides are unpaired.
//   - Searching → wait notice, nothing forwarded.
//   - Idle → prompt to start searching.
func (m *Matchmaker) Relay(ctx context.Context, id int64, c Content) error {
	u, err := m.caller(ctx, id)
	if u == nil {
		return err
	}

	partner, chatting := u.State.Partner()
	switch {
	case chatting:
		if err := m.transport.Forward(ctx, partner, c); err != nil {
			m.log.Warn("forward failed", "user_id", id, "partner_id", partner, "err", err)
			return m.dropUnreachable(ctx, id, partner)
		}
		m.publish(ctx, events.New(events.Relayed, id, partner))
	case u.State.IsSearching():
		m.send(ctx, id, Reply{Text: msgStillSearching})
	default:
		m.send(ctx, id, Reply{Text: msgPromptSearch, Keyboard: MainKeyboard})
	}
	return nil
}

// ReportUnreachable handles a delivery to recipient that failed outside the
// Transport, e.g. on a bridge adapter. The recipient's partner is told and the
// pair is ended. sender, when non-zero, must still be the recipient's partner;
// otherwise the report is stale and ignored.
func (m *Matchmaker) ReportUnreachable(ctx context.Context, recipient, sender int64) error {
	u, err := m.store.Get(ctx, recipient)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %d: %w", recipient, err)
	}
	if u, err = m.reconcile(ctx, u); err != nil {
		return err
	}

	partner, chatting := u.State.Partner()
	if !chatting || (sender != 0 && partner != sender) {
		m.log.Debug("stale undeliverable report", "user_id", recipient, "sender_id", sender)
		return nil
	}
	m.log.Warn("delivery failed on bridge", "user_id", partner, "partner_id", recipient)
	return m.dropUnreachable(ctx, partner, recipient)
}

// dropUnreachable tells id its partner is gone and ends the pair.
func (m *Matchmaker) dropUnreachable(ctx context.Context, id, partner int64) error {
	m.send(ctx, id, Reply{Text: msgUnreachable})
	m.publish(ctx, events.New(events.Unreachable, id, partner))
	return m.StopPair(ctx, id, partner)
}

// Next ends the current chat, if any, and immediately searches again.
func (m *Matchmaker) Next(ctx context.Context, id int64) error {
	u, err := m.caller(ctx, id)
	if u == nil {
		return err
	}

	if partner, ok := u.State.Partner(); ok {
		m.send(ctx, partner, Reply{Text: msgPartnerSkipped, Keyboard: MainKeyboard})
		if err := m.StopPair(ctx, id, partner); err != nil {
			return err
		}
		m.publish(ctx, events.New(events.Ended, id, partner))
	}
	return m.search(ctx, id)
}

// Stop ends the chat or the search and returns the caller to the menu.
// Calling it while idle only repeats the notice. A search that gets paired
// while stopping is treated as a chat and ended.
func (m *Matchmaker) Stop(ctx context.Context, id int64) error {
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		u, err := m.caller(ctx, id)
		if u == nil {
			return err
		}

		if partner, ok := u.State.Partner(); ok {
			m.send(ctx, partner, Reply{Text: msgPartnerStopped, Keyboard: MainKeyboard})
			if err := m.StopPair(ctx, id, partner); err != nil {
				return err
			}
			m.publish(ctx, events.New(events.Ended, id, partner))
			m.send(ctx, id, Reply{Text: msgYouStopped + "\n" + msgMainMenu, Keyboard: MainKeyboard})
			return nil
		}

		err = m.store.SetStateUnlessChatting(ctx, id, domain.Idle())
		if errors.Is(err, repository.ErrConflict) {
			m.log.Debug("stop raced a pairing", "user_id", id, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return fmt.Errorf("stop %d: %w", id, err)
		}
		m.send(ctx, id, Reply{Text: msgSearchStopped + "\n" + msgMainMenu, Keyboard: MainKeyboard})
		return nil
	}
	return fmt.Errorf("stop %d: %w", id, repository.ErrConflict)
}

// StopPair returns a and b to idle. b == 0 only resets a.
func (m *Matchmaker) StopPair(ctx context.Context, a, b int64) error {
	if err := m.store.Unpair(ctx, a, b); err != nil {
		return fmt.Errorf("unpair %d-%d: %w", a, b, err)
	}
	m.log.Info("users unpaired", "user_id", a, "partner_id", b)
	return nil
}

// caller loads a registered user and repairs a stale pairing. A nil user with a
// nil error means the caller was redirected to registration.
func (m *Matchmaker) caller(ctx context.Context, id int64) (*domain.User, error) {
	u, err := m.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		m.send(ctx, id, Reply{Text: msgNotRegistered})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %d: %w", id, err)
	}
	return m.reconcile(ctx, u)
}

// reconcile resets a chatting user whose partner does not point back.
func (m *Matchmaker) reconcile(ctx context.Context, u *domain.User) (*domain.User, error) {
	partnerID, ok := u.State.Partner()
	if !ok {
		return u, nil
	}

	partner, err := m.store.Get(ctx, partnerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load partner %d: %w", partnerID, err)
	}
	if partner != nil && partner.PairedWith(u.ID) {
		return u, nil
	}

	m.log.Warn("stale pair reset", "user_id", u.ID, "partner_id", partnerID)
	if err := m.store.SetState(ctx, u.ID, domain.Idle()); err != nil {
		return nil, fmt.Errorf("reset stale %d: %w", u.ID, err)
	}
	u.State = domain.Idle()
	m.send(ctx, u.ID, Reply{Text: msgStaleChat})
	return u, nil
}

func (m *Matchmaker) showMenu(ctx context.Context, id int64) {
	m.send(ctx, id, Reply{Text: msgMainMenu, Keyboard: MainKeyboard})
}

// send delivers a notice. Failures are logged, never returned.
func (m *Matchmaker) send(ctx context.Context, id int64, r Reply) {
	if err := m.transport.Send(ctx, id, r); err != nil {
		m.log.Debug("notice not delivered", "user_id", id, "err", err)
	}
}

func (m *Matchmaker) publish(ctx context.Context, e events.Event) {
	if err := m.events.Publish(ctx, e); err != nil {
		m.log.Warn("event publish failed", "type", e.Type, "user_id", e.UserID, "err", err)
	}
}

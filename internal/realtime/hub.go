package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/oggyb/anon-relay/internal/matchmaker"
)

// Delivery frame types.
const (
	TypeMessage = "message"
	TypeForward = "forward"
	// TypeSubscribed opens a bridge stream; it carries no payload.
	TypeSubscribed = "subscribed"
)

// Delivery is one outbound frame, as written to sockets and bridges.
type Delivery struct {
	Type    string              `json:"type"`
	UserID  int64               `json:"user_id"`
	Reply   *matchmaker.Reply   `json:"reply,omitempty"`
	Content *matchmaker.Content `json:"content,omitempty"`
}

// Session is a live per-user sink, normally a *Connection.
type Session interface {
	SessionID() string
	UserID() int64
	Start()
	Send(payload []byte) error
	Close(code int, reason string)
}

// closeReplaced is sent to a socket superseded by a newer one of the same user.
const closeReplaced = 4001

// Hub is the matchmaker Transport. It keeps one active session per user and
// falls back to bridge subscribers (adapters for other chat networks) for users
// without a socket.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]Session
	bridges  map[string]*Bridge
	order    []string
}

var _ matchmaker.Transport = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[int64]Session),
		bridges:  make(map[string]*Bridge),
	}
}

// Attach registers s and starts it. A previous session of the same user is
// closed after the swap.
func (h *Hub) Attach(s Session) {
	h.mu.Lock()
	previous := h.sessions[s.UserID()]
	h.sessions[s.UserID()] = s
	h.mu.Unlock()

	s.Start()

	if previous != nil && previous.SessionID() != s.SessionID() {
		previous.Close(closeReplaced, "session replaced")
	}
}

// Detach forgets s if it is still the user's current session.
func (h *Hub) Detach(s Session) {
	h.mu.Lock()
	if current, ok := h.sessions[s.UserID()]; ok && current.SessionID() == s.SessionID() {
		delete(h.sessions, s.UserID())
	}
	h.mu.Unlock()
}

// Online reports whether the user has a socket attached.
func (h *Hub) Online(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[userID]
	return ok
}

// OnlineCount returns the number of attached sockets.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Subscribe opens a bridge that receives deliveries for users without a socket.
func (h *Hub) Subscribe(buffer int) *Bridge {
	b := newBridge(buffer)
	h.mu.Lock()
	h.bridges[b.ID] = b
	h.order = append(h.order, b.ID)
	h.mu.Unlock()
	return b
}

// Unsubscribe removes and closes a bridge.
func (h *Hub) Unsubscribe(b *Bridge) {
	h.mu.Lock()
	delete(h.bridges, b.ID)
	for i, id := range h.order {
		if id == b.ID {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	b.close()
}

func (h *Hub) Send(_ context.Context, userID int64, r matchmaker.Reply) error {
	return h.deliver(Delivery{Type: TypeMessage, UserID: userID, Reply: &r})
}

func (h *Hub) Forward(_ context.Context, userID int64, c matchmaker.Content) error {
	return h.deliver(Delivery{Type: TypeForward, UserID: userID, Content: &c})
}

func (h *Hub) deliver(d Delivery) error {
	h.mu.RLock()
	session := h.sessions[d.UserID]
	h.mu.RUnlock()

	if session != nil {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal delivery: %w", err)
		}
		if err := session.Send(payload); err != nil {
			h.Detach(session)
			return fmt.Errorf("user %d: %w: %v", d.UserID, matchmaker.ErrPartnerUnreachable, err)
		}
		return nil
	}

	bridge := h.pickBridge(d.UserID)
	if bridge == nil {
		return fmt.Errorf("user %d offline: %w", d.UserID, matchmaker.ErrPartnerUnreachable)
	}
	if err := bridge.offer(d); err != nil {
		return fmt.Errorf("user %d: %w: %v", d.UserID, matchmaker.ErrPartnerUnreachable, err)
	}
	return nil
}

// pickBridge maps a user onto one subscriber, so a user's frames stay on the
// same adapter while the subscriber set is unchanged.
func (h *Hub) pickBridge(userID int64) *Bridge {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.order) == 0 {
		return nil
	}
	return h.bridges[h.order[uint64(userID)%uint64(len(h.order))]]
}

// Close drops every session and bridge.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	bridges := make([]*Bridge, 0, len(h.bridges))
	for _, b := range h.bridges {
		bridges = append(bridges, b)
	}
	h.sessions = make(map[int64]Session)
	h.bridges = make(map[string]*Bridge)
	h.order = nil
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close(1001, "hub shutdown")
	}
	for _, b := range bridges {
		b.close()
	}
}

var errBridgeFull = errors.New("bridge buffer full")
var errBridgeClosed = errors.New("bridge closed")

// Bridge is a buffered stream of deliveries consumed by an external adapter.
type Bridge struct {
	ID string

	mu     sync.Mutex
	ch     chan Delivery
	closed bool
}

func newBridge(buffer int) *Bridge {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bridge{ID: uuid.NewString(), ch: make(chan Delivery, buffer)}
}

// C yields deliveries until the bridge is closed.
func (b *Bridge) C() <-chan Delivery { return b.ch }

func (b *Bridge) offer(d Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errBridgeClosed
	}
	select {
	case b.ch <- d:
		return nil
	default:
		return errBridgeFull
	}
}

func (b *Bridge) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

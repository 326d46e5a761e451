package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oggyb/anon-relay/internal/domain"
)

// MemoryUserStore keeps users in process memory. One mutex guards every
// operation, which makes Pair trivially atomic.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[int64]*domain.User
	order []int64
	now   func() time.Time
}

var _ UserStore = (*MemoryUserStore)(nil)

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users: make(map[int64]*domain.User),
		now:   time.Now,
	}
}

func (m *MemoryUserStore) Get(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryUserStore) Register(_ context.Context, p domain.Profile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[p.ID]; ok {
		return false, nil
	}
	gender := p.Gender
	if gender == "" {
		gender = domain.GenderUnspecified
	}
	now := m.now()
	m.users[p.ID] = &domain.User{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Gender:      gender,
		State:       domain.Idle(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.order = append(m.order, p.ID)
	return true, nil
}

func (m *MemoryUserStore) SetState(_ context.Context, id int64, s domain.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.State = s
	u.UpdatedAt = m.now()
	return nil
}

func (m *MemoryUserStore) SetStateUnlessChatting(_ context.Context, id int64, s domain.State) error {
	if s.IsChatting() {
		return errEnterChatting
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	if u.State.IsChatting() {
		return fmt.Errorf("user %d is chatting: %w", id, ErrConflict)
	}
	u.State = s
	u.UpdatedAt = m.now()
	return nil
}

// FindOneSearching scans in registration order.
func (m *MemoryUserStore) FindOneSearching(_ context.Context, excluding int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		u := m.users[id]
		if id != excluding && u.State.IsSearching() {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryUserStore) Pair(_ context.Context, a, b int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a == b {
		return fmt.Errorf("pair %d with itself: %w", a, ErrConflict)
	}
	ua, okA := m.users[a]
	ub, okB := m.users[b]
	if !okA || !okB || !ua.State.IsSearching() || !ub.State.IsSearching() {
		return fmt.Errorf("pair %d-%d: %w", a, b, ErrConflict)
	}
	now := m.now()
	ua.State, ua.UpdatedAt = domain.Chatting(b), now
	ub.State, ub.UpdatedAt = domain.Chatting(a), now
	return nil
}

func (m *MemoryUserStore) Unpair(_ context.Context, a, b int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if b == 0 || b == a {
		if u, ok := m.users[a]; ok {
			u.State, u.UpdatedAt = domain.Idle(), now
		}
		return nil
	}
	for _, p := range [][2]int64{{a, b}, {b, a}} {
		u, ok := m.users[p[0]]
		if !ok {
			continue
		}
		if partner, chatting := u.State.Partner(); chatting && partner != p[1] {
			continue
		}
		u.State, u.UpdatedAt = domain.Idle(), now
	}
	return nil
}

func (m *MemoryUserStore) Count(_ context.Context) (map[domain.Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[domain.Status]int64{
		domain.StatusIdle:      0,
		domain.StatusSearching: 0,
		domain.StatusChatting:  0,
	}
	for _, u := range m.users {
		out[u.State.Status()]++
	}
	return out, nil
}

package repository

import (
	"context"
	"errors"

	"github.com/oggyb/anon-relay/internal/domain"
)

var (
	// ErrNotFound means no user record matched.
	ErrNotFound = errors.New("user not found")
	// ErrConflict means a compare-and-update lost against a concurrent writer,
	// e.g. the candidate partner was claimed by someone else first.
	ErrConflict = errors.New("concurrent update conflict")

	errEnterChatting = errors.New("chatting is only entered through Pair")
)

// UserStore persists users and their matchmaking state.
//
// Each method is an independent write unless stated otherwise. Pair and Unpair
// update both records inside one transactional scope.
type UserStore interface {
	// Get returns the user or ErrNotFound.
	Get(ctx context.Context, id int64) (*domain.User, error)

	// Register creates an idle user without partner. It is a no-op that returns
	// created=false when the user already exists.
	Register(ctx context.Context, p domain.Profile) (created bool, err error)

	// SetState writes status and partner together.
	SetState(ctx context.Context, id int64, s domain.State) error

	// SetStateUnlessChatting moves a user that is not chatting to s (idle or
	// searching). A user paired since it was read is left alone and
	// ErrConflict is returned.
	SetStateUnlessChatting(ctx context.Context, id int64, s domain.State) error

	// FindOneSearching returns some searching user other than excluding, or
	// ErrNotFound. Candidates are scanned in user id order; there is no
	// fairness or wait-time ordering.
	FindOneSearching(ctx context.Context, excluding int64) (*domain.User, error)

	// Pair links a and b as chatting partners. Both must still be searching,
	// otherwise nothing is written and ErrConflict is returned.
	Pair(ctx context.Context, a, b int64) error

	// Unpair resets a and b to idle without partner. b == 0 updates only a.
	// A record already chatting with someone other than the other side is
	// left alone. Missing records are ignored.
	Unpair(ctx context.Context, a, b int64) error

	// Count returns the number of users per status.
	Count(ctx context.Context) (map[domain.Status]int64, error)
}

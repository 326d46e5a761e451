package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidGender is returned when a registration selection is not one of the
// offered genders.
var ErrInvalidGender = errors.New("invalid gender selection")

type Gender string

const (
	GenderUnspecified Gender = "unspecified"
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
)

// Menu labels offered on the registration keyboard.
const (
	MaleLabel   = "👨 Male"
	FemaleLabel = "👩 Female"
)

// ParseGender accepts a canonical gender name or one of the registration
// keyboard labels.
func ParseGender(s string) (Gender, error) {
	switch strings.TrimSpace(s) {
	case MaleLabel:
		return GenderMale, nil
	case FemaleLabel:
		return GenderFemale, nil
	}
	switch Gender(strings.ToLower(strings.TrimSpace(s))) {
	case GenderMale:
		return GenderMale, nil
	case GenderFemale:
		return GenderFemale, nil
	}
	return GenderUnspecified, ErrInvalidGender
}

// Label returns the human readable form shown on profiles.
func (g Gender) Label() string {
	switch g {
	case GenderMale:
		return MaleLabel
	case GenderFemale:
		return FemaleLabel
	default:
		return "Unspecified"
	}
}

type Status string

const (
	StatusIdle      Status = "idle"
	StatusSearching Status = "searching"
	StatusChatting  Status = "chatting"
)

// State is the matchmaking state of a user: Idle, Searching or Chatting(partner).
// Only the constructors below produce a State, so a partner is present iff the
// status is chatting.
type State struct {
	status  Status
	partner int64
}

func Idle() State      { return State{status: StatusIdle} }
func Searching() State { return State{status: StatusSearching} }

// Chatting returns the paired state. Zero is never a valid user id and
// yields Idle.
func Chatting(partner int64) State {
	if partner == 0 {
		return Idle()
	}
	return State{status: StatusChatting, partner: partner}
}

// StateFrom rebuilds a State from its stored columns, collapsing combinations
// that violate the partner/status coupling.
func StateFrom(status Status, partner *int64) State {
	switch status {
	case StatusSearching:
		return Searching()
	case StatusChatting:
		if partner == nil {
			return Idle()
		}
		return Chatting(*partner)
	default:
		return Idle()
	}
}

func (s State) Status() Status {
	if s.status == "" {
		return StatusIdle
	}
	return s.status
}

// Partner returns the partner id and true only while chatting.
func (s State) Partner() (int64, bool) {
	if s.status != StatusChatting {
		return 0, false
	}
	return s.partner, true
}

// PartnerPtr is the nullable column form of the partner id.
func (s State) PartnerPtr() *int64 {
	if p, ok := s.Partner(); ok {
		return &p
	}
	return nil
}

func (s State) IsIdle() bool      { return s.Status() == StatusIdle }
func (s State) IsSearching() bool { return s.Status() == StatusSearching }
func (s State) IsChatting() bool  { return s.Status() == StatusChatting }

func (s State) String() string {
	if p, ok := s.Partner(); ok {
		return string(StatusChatting) + "(" + strconv.FormatInt(p, 10) + ")"
	}
	return string(s.Status())
}

// Profile is the registration payload.
type Profile struct {
	ID          int64
	DisplayName string
	Gender      Gender
}

// User is one registered participant of the relay.
type User struct {
	ID          int64
	DisplayName string
	Gender      Gender
	State       State
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PairedWith reports whether u is chatting with id.
func (u *User) PairedWith(id int64) bool {
	p, ok := u.State.Partner()
	return ok && p == id
}

package db

import (
	"time"

	"github.com/oggyb/anon-relay/internal/domain"
)

// User is one registered chat participant.
//
// Columns:
//   - UserID: external identifier from the chat transport (not auto-incremented).
//   - Status: idle | searching | chatting.
//   - PartnerID: set iff Status is chatting.
//
// Indexes:
//   - idx_status_user(status, user_id)
//     Serves the "first searching user other than me" lookup.
type User struct {
	UserID      int64         `gorm:"primaryKey;autoIncrement:false;index:idx_status_user,priority:2"`
	DisplayName string        `gorm:"size:128"`
	Gender      domain.Gender `gorm:"size:16;not null;default:unspecified"`
	Status      domain.Status `gorm:"size:16;not null;default:idle;index:idx_status_user,priority:1"`
	PartnerID   *int64
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// ToDomain converts the row into the domain record, repairing any
// status/partner combination that breaks the coupling.
func (u *User) ToDomain() *domain.User {
	return &domain.User{
		ID:          u.UserID,
		DisplayName: u.DisplayName,
		Gender:      u.Gender,
		State:       domain.StateFrom(u.Status, u.PartnerID),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

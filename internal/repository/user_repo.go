package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/anon-relay/internal/db"
	"github.com/oggyb/anon-relay/internal/domain"
)

// UserRepository is the SQL-backed UserStore (MySQL in production, SQLite in
// tests). Pairing relies on conditional updates inside a transaction, so a
// searching row is consumed by at most one partner.
type UserRepository struct {
	db *gorm.DB
}

var _ UserStore = (*UserRepository)(nil)

// NewUserRepository creates a new repository bound to the given DB connection.
func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// Get loads a single user by external id.
func (r *UserRepository) Get(ctx context.Context, id int64) (*domain.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Where("user_id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u.ToDomain(), nil
}

// Register inserts an idle user.
//
// Behavior:
//   - New id → row inserted with status idle and no partner, created=true.
//   - Existing id → nothing changes, created=false.
func (r *UserRepository) Register(ctx context.Context, p domain.Profile) (bool, error) {
	gender := p.Gender
	if gender == "" {
		gender = domain.GenderUnspecified
	}
	row := db.User{
		UserID:      p.ID,
		DisplayName: p.DisplayName,
		Gender:      gender,
		Status:      domain.StatusIdle,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetState writes status and partner_id in one statement.
func (r *UserRepository) SetState(ctx context.Context, id int64, s domain.State) error {
	res := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("user_id = ?", id).
		Updates(stateColumns(s))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL reports 0 for rows that did not change, so confirm absence.
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SetStateUnlessChatting updates the row only while it is not chatting.
func (r *UserRepository) SetStateUnlessChatting(ctx context.Context, id int64, s domain.State) error {
	if s.IsChatting() {
		return errEnterChatting
	}
	res := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("user_id = ? AND status <> ?", id, domain.StatusChatting).
		Updates(stateColumns(s))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		u, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if u.State.IsChatting() {
			return fmt.Errorf("user %d is chatting: %w", id, ErrConflict)
		}
	}
	return nil
}

// FindOneSearching returns the searching user with the lowest id, other than
// excluding.
func (r *UserRepository) FindOneSearching(ctx context.Context, excluding int64) (*domain.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).
		Where("status = ? AND user_id <> ?", domain.StatusSearching, excluding).
		Order("user_id").
		Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u.ToDomain(), nil
}

// Pair flips two searching users to chatting with each other.
//
// Behavior:
//   - Each row is updated only while its status is still searching.
//   - Rows are updated in id order so concurrent pairings lock in the same order.
//   - If either update misses, the transaction rolls back with ErrConflict.
func (r *UserRepository) Pair(ctx context.Context, a, b int64) error {
	if a == b {
		return fmt.Errorf("pair %d with itself: %w", a, ErrConflict)
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range [][2]int64{{first, second}, {second, first}} {
			res := tx.Model(&db.User{}).
				Where("user_id = ? AND status = ?", p[0], domain.StatusSearching).
				Updates(stateColumns(domain.Chatting(p[1])))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("user %d no longer searching: %w", p[0], ErrConflict)
			}
		}
		return nil
	})
}

// Unpair resets both users to idle in one transaction. Each row is reset only
// while it has no partner or points at the other side.
func (r *UserRepository) Unpair(ctx context.Context, a, b int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if b == 0 || b == a {
			return tx.Model(&db.User{}).
				Where("user_id = ?", a).
				Updates(stateColumns(domain.Idle())).Error
		}
		for _, p := range [][2]int64{{a, b}, {b, a}} {
			err := tx.Model(&db.User{}).
				Where("user_id = ? AND (partner_id IS NULL OR partner_id = ?)", p[0], p[1]).
				Updates(stateColumns(domain.Idle())).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Count groups users by status.
func (r *UserRepository) Count(ctx context.Context) (map[domain.Status]int64, error) {
	var rows []struct {
		Status domain.Status
		N      int64
	}
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := map[domain.Status]int64{
		domain.StatusIdle:      0,
		domain.StatusSearching: 0,
		domain.StatusChatting:  0,
	}
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

func stateColumns(s domain.State) map[string]any {
	return map[string]any{
		"status":     s.Status(),
		"partner_id": s.PartnerPtr(),
	}
}

package db

import (
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/anon-relay/internal/domain"
)

// Demo user ids live in a reserved negative range so they never collide with
// real transport ids.
const demoBaseID int64 = -1000

// SeedTestData resets the demo users and inserts a small pool.
//
// Behavior:
//  1. Deletes previously seeded demo rows only.
//  2. Creates 10 users alternating male/female, all idle. Demo users have no
//     transport behind them, so none of them is ever offered to a searcher.
func SeedTestData(db *gorm.DB) error {
	if err := db.Where("user_id <= ? AND user_id > ?", demoBaseID, demoBaseID-100).
		Delete(&User{}).Error; err != nil {
		return fmt.Errorf("failed to clear demo users: %w", err)
	}

	users := make([]User, 0, 10)
	for i := int64(0); i < 10; i++ {
		gender := domain.GenderMale
		if i%2 == 1 {
			gender = domain.GenderFemale
		}
		users = append(users, User{
			UserID:      demoBaseID - i,
			DisplayName: fmt.Sprintf("demo%d", i+1),
			Gender:      gender,
			Status:      domain.StatusIdle,
		})
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&users).Error; err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	log.Printf("Seeded %d demo users.", len(users))
	return nil
}

package model

import "time"

// Account is an authenticated subject. Usage counters live in Redis keyed by
// ID; the row only carries identity and plan state.
type Account struct {
	ID              string    `gorm:"primaryKey;type:text;not null"`
	Email           string    `gorm:"uniqueIndex;not null;size:255"`
	EmailVerified   bool      `gorm:"default:false;not null"`
	Tier            string    `gorm:"not null;default:'free';size:32"`
	BillingRef      string    `gorm:"size:255"`
	LastTierEventID string    `gorm:"size:128"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

package model

import "time"

// Link is a registry entry for a short URL. OwnerID is nil for anonymous
// creations; the owner is fixed at creation time.
type Link struct {
	ID           string     `json:"id" gorm:"primaryKey;type:text;not null"`
	Code         string     `json:"code" gorm:"uniqueIndex;not null;size:32"`
	OwnerID      *string    `json:"owner_id,omitempty" gorm:"index;size:64"`
	Target       string     `json:"target" gorm:"not null;size:2048"`
	Title        string     `json:"title" gorm:"size:255"`
	Status       string     `json:"status" gorm:"not null;default:'active';size:16"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	PasswordHash *string    `json:"-" gorm:"size:128"`
	Hits         int64      `json:"hits" gorm:"default:0;not null"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null;index"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"not null"`
}

// Expired reports whether the expiry gate has closed. Expiry is one-way and
// dominates the status flag.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

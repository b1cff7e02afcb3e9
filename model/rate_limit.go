package model

import "time"

// RateLimitEntry is one observation of an anonymous action. OriginHash is a
// salted one-way hash of the client address; the plaintext address is never
// stored here. Windows are recomputed from entries on demand.
type RateLimitEntry struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text;not null"`
	OriginHash string    `json:"origin_hash" gorm:"not null;index:idx_origin_created,priority:1;size:64"`
	ActionKind string    `json:"action_kind" gorm:"not null;size:16"`
	Metadata   string    `json:"metadata,omitempty" gorm:"size:512"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null;index:idx_origin_created,priority:2"`
}

// AbuseRecord accumulates violations per origin hash. Banned is terminal;
// there is no automatic reset.
type AbuseRecord struct {
	OriginHash   string     `json:"origin_hash" gorm:"primaryKey;type:text;not null"`
	Warnings     int        `json:"warnings" gorm:"default:0;not null"`
	PenaltyUntil *time.Time `json:"penalty_until,omitempty" gorm:"index"`
	Banned       bool       `json:"banned" gorm:"default:false;not null"`
	LastAddress  string     `json:"last_address,omitempty" gorm:"size:64"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"not null"`
}

// AbuseLogEntry records one blocked request for manual review. Unlike ledger
// entries it may retain the plaintext address, with a longer retention.
type AbuseLogEntry struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text;not null"`
	OriginHash string    `json:"origin_hash" gorm:"not null;index"`
	Address    string    `json:"address" gorm:"size:64"`
	ActionKind string    `json:"action_kind" gorm:"not null;size:16"`
	Window     string    `json:"window" gorm:"size:16"`
	UserAgent  string    `json:"user_agent,omitempty" gorm:"size:512"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null;index"`
}

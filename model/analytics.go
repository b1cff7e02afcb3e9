package model

import "time"

// AnalyticsEvent is an immutable, append-only record. Events outlive the
// resource they reference and are pruned only by retention.
type AnalyticsEvent struct {
	ID           string    `json:"id" gorm:"primaryKey;type:text;not null"`
	Kind         string    `json:"kind" gorm:"not null;size:16;index:idx_resource_kind,priority:2"`
	ResourceID   string    `json:"resource_id" gorm:"not null;index:idx_resource_kind,priority:1;index:idx_resource_created,priority:1"`
	ResourceKind string    `json:"resource_kind" gorm:"not null;size:16"`
	OwnerID      *string   `json:"owner_id,omitempty" gorm:"index;size:64"`
	OriginHash   string    `json:"origin_hash,omitempty" gorm:"size:64"`
	UserAgent    string    `json:"user_agent,omitempty" gorm:"size:512"`
	Referrer     string    `json:"referrer,omitempty" gorm:"size:512"`
	Country      string    `json:"country,omitempty" gorm:"size:64"`
	Suspicious   bool      `json:"suspicious" gorm:"default:false;not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null;index:idx_resource_created,priority:2;index"`
}

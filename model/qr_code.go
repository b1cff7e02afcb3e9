package model

import "time"

const (
	QRKindStatic  = "static"
	QRKindDynamic = "dynamic"
)

// QRCode is a registry entry for a QR code. Static codes encode Content
// literally; dynamic codes encode a dispatch URL that redirects to Target and
// can be re-pointed after printing.
type QRCode struct {
	ID           string     `json:"id" gorm:"primaryKey;type:text;not null"`
	Code         string     `json:"code" gorm:"uniqueIndex;not null;size:32"`
	OwnerID      *string    `json:"owner_id,omitempty" gorm:"index;size:64"`
	Kind         string     `json:"kind" gorm:"not null;size:16"`
	Content      string     `json:"content" gorm:"not null;size:2048"`
	Target       string     `json:"target,omitempty" gorm:"size:2048"`
	Title        string     `json:"title" gorm:"size:255"`
	Status       string     `json:"status" gorm:"not null;default:'active';size:16"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	PasswordHash *string    `json:"-" gorm:"size:128"`
	Scans        int64      `json:"scans" gorm:"default:0;not null"`
	LastEditAt   *time.Time `json:"last_edit_at,omitempty"`
	ImageKey     string     `json:"image_key,omitempty" gorm:"size:255"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null;index"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"not null"`
}

func (q *QRCode) Expired(now time.Time) bool {
	return q.ExpiresAt != nil && q.ExpiresAt.Before(now)
}

// CounterKind maps the QR variant to the usage-counter kind it consumes.
func (q *QRCode) CounterKind() string {
	if q.Kind == QRKindDynamic {
		return "qr_dynamic"
	}
	return "qr_static"
}

package dto

import (
	"time"

	"github.com/snaplink-labs/snaplink_api/model"
)

type CreateQRRequest struct {
	Kind      string     `json:"kind" validate:"required,oneof=static dynamic"`
	Content   string     `json:"content" validate:"required,max=2048"`
	Target    string     `json:"target,omitempty" validate:"omitempty,http_url,max=2048"`
	Code      string     `json:"code,omitempty" validate:"omitempty,short_code"`
	Title     string     `json:"title,omitempty" validate:"omitempty,max=255"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Password  string     `json:"password,omitempty" validate:"omitempty,min=4,max=72"`
	Size      int        `json:"size,omitempty" validate:"omitempty,min=64,max=2048"`

	// Meta is requester context collected at the boundary. It never comes
	// from the request body.
	Meta RequestMeta `json:"-"`
}

func (r CreateQRRequest) Validate() error {
	return GetValidator().Struct(r)
}

type UpdateQRRequest struct {
	Kind      *string    `json:"kind,omitempty" validate:"omitempty,oneof=static dynamic"`
	Content   *string    `json:"content,omitempty" validate:"omitempty,max=2048"`
	Target    *string    `json:"target,omitempty" validate:"omitempty,http_url,max=2048"`
	Title     *string    `json:"title,omitempty" validate:"omitempty,max=255"`
	Status    *string    `json:"status,omitempty" validate:"omitempty,oneof=active disabled"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Password  *string    `json:"password,omitempty" validate:"omitempty,max=72"`
}

func (r UpdateQRRequest) Validate() error {
	return GetValidator().Struct(r)
}

type QRResponse struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	PublicURL string     `json:"public_url"`
	ImageURL  string     `json:"image_url,omitempty"`
	Kind      string     `json:"kind"`
	Content   string     `json:"content"`
	Target    string     `json:"target,omitempty"`
	Title     string     `json:"title,omitempty"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Protected bool       `json:"protected"`
	Scans     int64      `json:"scans"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewQRResponse(q *model.QRCode, baseURL, imageURL string) QRResponse {
	return QRResponse{
		ID:        q.ID,
		Code:      q.Code,
		PublicURL: baseURL + "/" + q.Code,
		ImageURL:  imageURL,
		Kind:      q.Kind,
		Content:   q.Content,
		Target:    q.Target,
		Title:     q.Title,
		Status:    q.Status,
		ExpiresAt: q.ExpiresAt,
		Protected: q.PasswordHash != nil,
		Scans:     q.Scans,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
	}
}

type QRListResponse struct {
	Codes []QRResponse `json:"codes"`
	Total int          `json:"total"`
}

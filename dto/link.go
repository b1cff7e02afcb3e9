package dto

import (
	"time"

	"github.com/snaplink-labs/snaplink_api/model"
)

type CreateLinkRequest struct {
	Target    string     `json:"target" validate:"required,http_url,max=2048"`
	Code      string     `json:"code,omitempty" validate:"omitempty,short_code"`
	Title     string     `json:"title,omitempty" validate:"omitempty,max=255"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Password  string     `json:"password,omitempty" validate:"omitempty,min=4,max=72"`

	// Meta is requester context collected at the boundary. It never comes
	// from the request body.
	Meta RequestMeta `json:"-"`
}

func (r CreateLinkRequest) Validate() error {
	return GetValidator().Struct(r)
}

// UpdateLinkRequest is a patch: nil fields are left untouched.
type UpdateLinkRequest struct {
	Target    *string    `json:"target,omitempty" validate:"omitempty,http_url,max=2048"`
	Title     *string    `json:"title,omitempty" validate:"omitempty,max=255"`
	Status    *string    `json:"status,omitempty" validate:"omitempty,oneof=active disabled"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Password  *string    `json:"password,omitempty" validate:"omitempty,max=72"`
}

func (r UpdateLinkRequest) Validate() error {
	return GetValidator().Struct(r)
}

type LinkResponse struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	PublicURL string     `json:"public_url"`
	Target    string     `json:"target"`
	Title     string     `json:"title,omitempty"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Protected bool       `json:"protected"`
	Hits      int64      `json:"hits"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewLinkResponse(l *model.Link, baseURL string) LinkResponse {
	return LinkResponse{
		ID:        l.ID,
		Code:      l.Code,
		PublicURL: baseURL + "/" + l.Code,
		Target:    l.Target,
		Title:     l.Title,
		Status:    l.Status,
		ExpiresAt: l.ExpiresAt,
		Protected: l.PasswordHash != nil,
		Hits:      l.Hits,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

type LinkListResponse struct {
	Links []LinkResponse `json:"links"`
	Total int            `json:"total"`
}

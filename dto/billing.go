package dto

// TierChangeRequest is the payload delivered by the billing provider webhook.
// EventID makes redelivery idempotent.
type TierChangeRequest struct {
	EventID   string `json:"event_id" validate:"required,max=128"`
	SubjectID string `json:"subject_id" validate:"required,max=64"`
	NewTier   string `json:"new_tier" validate:"required,oneof=free pro business enterprise unlimited"`
}

func (r TierChangeRequest) Validate() error {
	return GetValidator().Struct(r)
}

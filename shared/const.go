package shared

const (
	UserID = "user_id"

	TierFree       = "free"
	TierPro        = "pro"
	TierBusiness   = "business"
	TierEnterprise = "enterprise"
	TierUnlimited  = "unlimited"

	KindURL       = "url"
	KindQRStatic  = "qr_static"
	KindQRDynamic = "qr_dynamic"

	StatusActive   = "active"
	StatusDisabled = "disabled"

	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
	EventClicked = "clicked"
	EventScanned = "scanned"
	EventClaimed = "claimed"

	ActionURL = "url"
	ActionQR  = "qr"
)

package dto

// RequestMeta carries requester context from the HTTP boundary into the
// dispatch and creation paths and their analytics events.
type RequestMeta struct {
	OriginHash string
	Address    string
	UserAgent  string
	Referrer   string
	Suspicious bool
}

package dto

import "time"

// RateLimitDecision is the outcome of an anonymous-window check.
type RateLimitDecision struct {
	Allowed     bool       `json:"allowed"`
	HourlyUsage int64      `json:"hourly_usage"`
	DailyUsage  int64      `json:"daily_usage"`
	Window      string     `json:"window,omitempty"`
	RetryAfter  *time.Time `json:"retry_after,omitempty"`
	Warning     string     `json:"warning,omitempty"`
	Suspicious  bool       `json:"suspicious,omitempty"`
}

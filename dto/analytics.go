package dto

import (
	"time"

	"github.com/snaplink-labs/snaplink_api/model"
)

type RecentEventsResponse struct {
	Events []model.AnalyticsEvent `json:"events"`
	Total  int                    `json:"total"`
}

type AnalyticsBucket struct {
	Date  time.Time `json:"date"`
	Count int64     `json:"count"`
}

type AnalyticsSeriesResponse struct {
	ResourceID   string            `json:"resource_id"`
	ResourceKind string            `json:"resource_kind"`
	Total        int64             `json:"total"`
	From         time.Time         `json:"from"`
	To           time.Time         `json:"to"`
	Buckets      []AnalyticsBucket `json:"buckets"`
}

type UsageResponse struct {
	Tier  string           `json:"tier"`
	Usage map[string]int64 `json:"usage"`
}

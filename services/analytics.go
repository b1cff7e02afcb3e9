package services

import (
	"context"
	"time"
	"unicode/utf8"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/snaplink-labs/snaplink_api/dto"
	"github.com/snaplink-labs/snaplink_api/model"
)

// AnalyticsService is the append-only event sink. Appends are best-effort:
// a failed append is logged and never rolls back the business operation that
// produced it. Events outlive their resource and expire by retention only.
type AnalyticsService struct {
	appContext.DefaultService

	sqlSvc *SqlService
}

const ANALYTICS_SVC = "analytics_svc"

const analyticsRetention = 365 * 24 * time.Hour

func (svc AnalyticsService) Id() string {
	return ANALYTICS_SVC
}

func (svc *AnalyticsService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *AnalyticsService) Start() error {
	svc.sqlSvc = svc.Service(SQL_SVC).(*SqlService)

	go svc.startCleanupJob()

	return nil
}

// EventInput carries requester metadata into an append.
type EventInput struct {
	Kind         string
	ResourceID   string
	ResourceKind string
	OwnerID      *string
	OriginHash   string
	UserAgent    string
	Referrer     string
	Country      string
	Suspicious   bool
}

// Append writes one immutable event. Returns the error for callers that need
// the both-side-effects guarantee; most callers log and move on.
func (svc *AnalyticsService) Append(ctx context.Context, in EventInput) error {
	event := &model.AnalyticsEvent{
		ID:           uuid.New().String(),
		Kind:         in.Kind,
		ResourceID:   in.ResourceID,
		ResourceKind: in.ResourceKind,
		OwnerID:      in.OwnerID,
		OriginHash:   in.OriginHash,
		UserAgent:    truncate(in.UserAgent, 512),
		Referrer:     truncate(in.Referrer, 512),
		Country:      in.Country,
		Suspicious:   in.Suspicious,
		CreatedAt:    time.Now(),
	}

	if err := svc.sqlSvc.Db().WithContext(ctx).Create(event).Error; err != nil {
		log.WithError(err).WithFields(log.Fields{
			"kind":     in.Kind,
			"resource": in.ResourceID,
		}).Warn("Failed to append analytics event")
		return err
	}
	return nil
}

// Series returns per-day counts for one resource between from and to.
func (svc *AnalyticsService) Series(ctx context.Context, resourceID string, from, to time.Time) (*dto.AnalyticsSeriesResponse, error) {
	var events []model.AnalyticsEvent
	err := svc.sqlSvc.Db().WithContext(ctx).
		Where("resource_id = ? AND created_at >= ? AND created_at < ?", resourceID, from, to).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	buckets := map[time.Time]int64{}
	resourceKind := ""
	for i := range events {
		day := events[i].CreatedAt.UTC().Truncate(24 * time.Hour)
		buckets[day]++
		resourceKind = events[i].ResourceKind
	}

	resp := &dto.AnalyticsSeriesResponse{
		ResourceID:   resourceID,
		ResourceKind: resourceKind,
		Total:        int64(len(events)),
		From:         from,
		To:           to,
	}
	for day := from.UTC().Truncate(24 * time.Hour); day.Before(to); day = day.Add(24 * time.Hour) {
		resp.Buckets = append(resp.Buckets, dto.AnalyticsBucket{Date: day, Count: buckets[day]})
	}
	return resp, nil
}

// CountByKind returns how many events of one kind a resource has accrued.
func (svc *AnalyticsService) CountByKind(ctx context.Context, resourceID, kind string) (int64, error) {
	var count int64
	err := svc.sqlSvc.Db().WithContext(ctx).
		Model(&model.AnalyticsEvent{}).
		Where("resource_id = ? AND kind = ?", resourceID, kind).
		Count(&count).Error
	return count, err
}

// RecentByOwner lists an owner's newest events.
func (svc *AnalyticsService) RecentByOwner(ctx context.Context, ownerID string, limit int) ([]model.AnalyticsEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var events []model.AnalyticsEvent
	err := svc.sqlSvc.Db().WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (svc *AnalyticsService) CleanupOldEvents() error {
	return svc.sqlSvc.Db().
		Where("created_at < ?", time.Now().Add(-analyticsRetention)).
		Delete(&model.AnalyticsEvent{}).Error
}

func (svc *AnalyticsService) startCleanupJob() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		if err := svc.CleanupOldEvents(); err != nil {
			log.Printf("Analytics cleanup error: %v", err)
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back off to a rune boundary so the cut never stores invalid UTF-8.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

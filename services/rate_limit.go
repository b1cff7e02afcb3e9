package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/snaplink-labs/snaplink_api/dto"
	"github.com/snaplink-labs/snaplink_api/model"
	"github.com/snaplink-labs/snaplink_api/shared"
)

// RateLimitService enforces anonymous-path limits from a ledger of hashed
// origin observations. Windows are never precomputed: each check filters the
// origin's entries from the last 24 hours and counts the hourly subset.
//
// Availability beats strict enforcement here: if the ledger cannot be read
// the request is allowed. Writes after a successful action are best-effort
// and never fail the parent operation.
type RateLimitService struct {
	appContext.DefaultService

	configs map[string]*RateLimitConfig

	salt       string
	sqlSvc     *SqlService
	monitorSvc *MonitoringService
}

// RateLimitConfig holds the window ceilings for one action kind.
type RateLimitConfig struct {
	ActionKind    string
	HourlyCeiling int64
	DailyCeiling  int64
	Description   string
}

const RATE_LIMIT_SVC = "rate_limit_svc"

const (
	ledgerRetention   = 30 * 24 * time.Hour
	abuseLogRetention = 90 * 24 * time.Hour

	warningThreshold = 0.8

	penaltyWarnings = 5
	penaltyDuration = 24 * time.Hour
	banWarnings     = 20

	burstWindow    = time.Minute
	burstThreshold = 5
)

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.salt = os.Getenv("RATE_SALT")
	if svc.salt == "" {
		return fmt.Errorf("RATE_SALT must be set")
	}

	svc.initDefaultConfigs()
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.sqlSvc = svc.Service(SQL_SVC).(*SqlService)
	svc.monitorSvc = svc.Service(MONITORING_SVC).(*MonitoringService)

	go svc.startCleanupJob()

	return nil
}

func (svc *RateLimitService) initDefaultConfigs() {
	svc.configs = map[string]*RateLimitConfig{
		shared.ActionURL: {
			ActionKind:    shared.ActionURL,
			HourlyCeiling: 5,
			DailyCeiling:  20,
			Description:   "Anonymous short URL creation",
		},
		shared.ActionQR: {
			ActionKind:    shared.ActionQR,
			HourlyCeiling: 3,
			DailyCeiling:  10,
			Description:   "Anonymous QR code creation",
		},
	}
}

// HashOrigin derives the ledger key from a client address. The plaintext
// address never reaches the ledger.
func (svc *RateLimitService) HashOrigin(address string) string {
	sum := sha256.Sum256([]byte(svc.salt + address))
	return hex.EncodeToString(sum[:])
}

// Check evaluates both rolling windows for an origin and action kind. A
// blocked request returns a RateLimited error alongside the decision; ledger
// read failures allow the request.
func (svc *RateLimitService) Check(ctx context.Context, originHash, actionKind, address, userAgent string) (*dto.RateLimitDecision, error) {
	config, exists := svc.configs[actionKind]
	if !exists {
		return &dto.RateLimitDecision{Allowed: true}, nil
	}

	now := time.Now()

	if blocked, until := svc.abuseBlocked(ctx, originHash, now); blocked {
		decision := &dto.RateLimitDecision{Window: "abuse", RetryAfter: until}
		return decision, shared.NewRateLimitError(shared.RateLimitData{
			Window:   "abuse",
			Guidance: "This origin has been blocked for repeated violations.",
		}, "Access blocked")
	}

	var entries []model.RateLimitEntry
	err := svc.sqlSvc.Db().WithContext(ctx).
		Where("origin_hash = ? AND created_at > ?", originHash, now.Add(-24*time.Hour)).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		// Degrade to allow: an unreachable ledger must not deny
		// legitimate traffic.
		log.WithError(err).WithField("origin", originHash).
			Warn("Rate limit ledger unavailable, allowing request")
		return &dto.RateLimitDecision{Allowed: true}, nil
	}

	hourStart := now.Add(-time.Hour)
	var hourly, daily, burst int64
	var oldestInHour *time.Time
	for i := range entries {
		e := &entries[i]
		// Burst counts every action from the origin, not just this kind.
		if e.CreatedAt.After(now.Add(-burstWindow)) {
			burst++
		}
		if e.ActionKind != actionKind {
			continue
		}
		daily++
		if e.CreatedAt.After(hourStart) {
			hourly++
			if oldestInHour == nil {
				t := e.CreatedAt
				oldestInHour = &t
			}
		}
	}

	decision := &dto.RateLimitDecision{
		Allowed:     true,
		HourlyUsage: hourly,
		DailyUsage:  daily,
		Suspicious:  burst > burstThreshold || automationSignature(userAgent),
	}

	if hourly >= config.HourlyCeiling {
		decision.Allowed = false
		decision.Window = "hourly"
		if oldestInHour != nil {
			retry := oldestInHour.Add(time.Hour)
			decision.RetryAfter = &retry
		}
		svc.logBlock(originHash, address, actionKind, "hourly", userAgent)
		data := shared.RateLimitData{
			Window:     "hourly",
			HourlyUsed: hourly,
			DailyUsed:  daily,
			Guidance:   "Sign in to lift anonymous limits.",
		}
		if decision.RetryAfter != nil {
			data.RetryAfter = int64(time.Until(*decision.RetryAfter).Seconds())
		}
		return decision, shared.NewRateLimitError(data, "Too many requests this hour")
	}

	if daily >= config.DailyCeiling {
		decision.Allowed = false
		decision.Window = "daily"
		svc.logBlock(originHash, address, actionKind, "daily", userAgent)
		return decision, shared.NewRateLimitError(shared.RateLimitData{
			Window:     "daily",
			HourlyUsed: hourly,
			DailyUsed:  daily,
			Guidance:   "Daily limit reached, try tomorrow or sign in.",
		}, "Daily limit reached")
	}

	if float64(hourly) >= warningThreshold*float64(config.HourlyCeiling) ||
		float64(daily) >= warningThreshold*float64(config.DailyCeiling) {
		decision.Warning = "You are approaching the anonymous usage limit. Sign in for higher limits."
	}

	return decision, nil
}

// Record appends a ledger entry after a successful action. Failures are
// logged and swallowed.
func (svc *RateLimitService) Record(ctx context.Context, originHash, actionKind, metadata string) {
	entry := &model.RateLimitEntry{
		ID:         uuid.New().String(),
		OriginHash: originHash,
		ActionKind: actionKind,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}

	if err := svc.sqlSvc.Db().WithContext(ctx).Create(entry).Error; err != nil {
		log.WithError(err).WithField("origin", originHash).
			Warn("Failed to record rate limit entry")
	}
}

// abuseBlocked consults the per-origin abuse record. A permanent ban is
// terminal; a penalty expires on its own.
func (svc *RateLimitService) abuseBlocked(ctx context.Context, originHash string, now time.Time) (bool, *time.Time) {
	var record model.AbuseRecord
	err := svc.sqlSvc.Db().WithContext(ctx).
		Where("origin_hash = ?", originHash).
		First(&record).Error
	if err != nil {
		// Missing record or unreadable store both mean no block.
		return false, nil
	}

	if record.Banned {
		return true, nil
	}
	if record.PenaltyUntil != nil && now.Before(*record.PenaltyUntil) {
		return true, record.PenaltyUntil
	}
	return false, nil
}

// logBlock appends an abuse-log entry and advances the origin's warning
// count. Best-effort on purpose: the caller already has its answer.
func (svc *RateLimitService) logBlock(originHash, address, actionKind, window, userAgent string) {
	now := time.Now()

	if svc.monitorSvc != nil {
		svc.monitorSvc.RecordRateLimitBlock(actionKind, window)
	}

	entry := &model.AbuseLogEntry{
		ID:         uuid.New().String(),
		OriginHash: originHash,
		Address:    address,
		ActionKind: actionKind,
		Window:     window,
		UserAgent:  userAgent,
		CreatedAt:  now,
	}
	if err := svc.sqlSvc.Db().Create(entry).Error; err != nil {
		log.WithError(err).Warn("Failed to append abuse log entry")
	}

	var record model.AbuseRecord
	err := svc.sqlSvc.Db().Where("origin_hash = ?", originHash).First(&record).Error
	if err != nil {
		record = model.AbuseRecord{
			OriginHash: originHash,
			CreatedAt:  now,
		}
	}

	record.Warnings++
	record.LastAddress = address
	record.UpdatedAt = now

	if record.Warnings >= banWarnings {
		record.Banned = true
	} else if record.Warnings >= penaltyWarnings {
		until := now.Add(penaltyDuration)
		record.PenaltyUntil = &until
	}

	if err := svc.sqlSvc.Db().Save(&record).Error; err != nil {
		log.WithError(err).Warn("Failed to update abuse record")
	}
}

// SuspiciousUserAgent reports whether a user agent carries a known
// automation signature. Advisory only; it never blocks on its own.
func (svc *RateLimitService) SuspiciousUserAgent(userAgent string) bool {
	return automationSignature(userAgent)
}

var automationSignatures = []string{
	"curl/", "wget/", "python-requests", "go-http-client", "bot", "spider",
	"crawler", "headlesschrome", "phantomjs",
}

func automationSignature(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, sig := range automationSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// ==================== BACKGROUND JOBS ====================

// CleanupOldRecords prunes ledger entries past their 30-day retention and
// abuse logs past 90 days. Retention intentionally exceeds the longest
// enforcement window so violations can still be audited.
func (svc *RateLimitService) CleanupOldRecords() error {
	now := time.Now()

	if err := svc.sqlSvc.Db().
		Where("created_at < ?", now.Add(-ledgerRetention)).
		Delete(&model.RateLimitEntry{}).Error; err != nil {
		return err
	}

	return svc.sqlSvc.Db().
		Where("created_at < ?", now.Add(-abuseLogRetention)).
		Delete(&model.AbuseLogEntry{}).Error
}

func (svc *RateLimitService) startCleanupJob() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		if err := svc.CleanupOldRecords(); err != nil {
			log.Printf("Rate limit cleanup error: %v", err)
		}
	}
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/snaplink-labs/snaplink_api/model"
	"github.com/snaplink-labs/snaplink_api/shared"
)

func newTestRateLimit(t *testing.T) *RateLimitService {
	t.Helper()

	svc := &RateLimitService{
		salt:   "test-salt",
		sqlSvc: newTestSql(t),
	}
	svc.initDefaultConfigs()
	return svc
}

func seedEntries(t *testing.T, svc *RateLimitService, originHash, actionKind string, n int, at time.Time) {
	t.Helper()

	for i := 0; i < n; i++ {
		entry := &model.RateLimitEntry{
			ID:         uuid.New().String(),
			OriginHash: originHash,
			ActionKind: actionKind,
			CreatedAt:  at.Add(time.Duration(i) * time.Second),
		}
		if err := svc.sqlSvc.Db().Create(entry).Error; err != nil {
			t.Fatalf("Failed to seed ledger entry: %v", err)
		}
	}
}

func TestHashOrigin(t *testing.T) {
	svc := newTestRateLimit(t)

	h1 := svc.HashOrigin("203.0.113.7")
	h2 := svc.HashOrigin("203.0.113.7")
	h3 := svc.HashOrigin("203.0.113.8")

	if h1 != h2 {
		t.Error("Same address must hash identically")
	}
	if h1 == h3 {
		t.Error("Different addresses must not collide")
	}
	if len(h1) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(h1))
	}

	other := &RateLimitService{salt: "other-salt"}
	if other.HashOrigin("203.0.113.7") == h1 {
		t.Error("Different salts must produce different hashes")
	}
}

func TestRateLimitCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("FreshOriginAllowed", func(t *testing.T) {
		svc := newTestRateLimit(t)

		decision, err := svc.Check(ctx, svc.HashOrigin("ip-1"), shared.ActionURL, "ip-1", "Mozilla/5.0")
		if err != nil {
			t.Fatalf("Expected allow, got %v", err)
		}
		if !decision.Allowed || decision.HourlyUsage != 0 || decision.DailyUsage != 0 {
			t.Errorf("Unexpected decision: %+v", decision)
		}
	})

	t.Run("HourlyCeilingBlocks", func(t *testing.T) {
		svc := newTestRateLimit(t)
		hash := svc.HashOrigin("ip-1")

		ceiling := int(svc.configs[shared.ActionURL].HourlyCeiling)
		seedEntries(t, svc, hash, shared.ActionURL, ceiling-1, time.Now().Add(-30*time.Minute))

		decision, err := svc.Check(ctx, hash, shared.ActionURL, "ip-1", "Mozilla/5.0")
		if err != nil {
			t.Fatalf("Request below the ceiling must pass, got %v", err)
		}
		if decision.HourlyUsage != int64(ceiling-1) {
			t.Errorf("Expected hourly usage %d, got %d", ceiling-1, decision.HourlyUsage)
		}

		seedEntries(t, svc, hash, shared.ActionURL, 1, time.Now().Add(-time.Minute*2))

		decision, err = svc.Check(ctx, hash, shared.ActionURL, "ip-1", "Mozilla/5.0")
		if err == nil {
			t.Fatal("Expected hourly block")
		}
		appErr, ok := shared.GetAppError(err)
		if !ok || appErr.StatusCode != 429 {
			t.Fatalf("Expected 429, got %v", err)
		}
		if decision.Window != "hourly" {
			t.Errorf("Expected hourly window, got %q", decision.Window)
		}
		if decision.RetryAfter == nil {
			t.Error("Hourly block should carry a retry time")
		} else if !decision.RetryAfter.After(time.Now()) {
			t.Error("Retry time should be in the future")
		}
	})

	t.Run("DailyCeilingBlocks", func(t *testing.T) {
		svc := newTestRateLimit(t)
		hash := svc.HashOrigin("ip-1")

		// Spread across the day so the hourly window stays clear.
		daily := int(svc.configs[shared.ActionURL].DailyCeiling)
		seedEntries(t, svc, hash, shared.ActionURL, daily, time.Now().Add(-5*time.Hour))

		decision, err := svc.Check(ctx, hash, shared.ActionURL, "ip-1", "Mozilla/5.0")
		if err == nil {
			t.Fatal("Expected daily block")
		}
		if decision.Window != "daily" {
			t.Errorf("Expected daily window, got %q", decision.Window)
		}
	})

	t.Run("ExpiredEntriesDoNotCount", func(t *testing.T) {
		svc := newTestRateLimit(t)
		hash := svc.HashOrigin("ip-1")

		seedEntries(t, svc, hash, shared.ActionURL, 50, time.Now().Add(-25*time.Hour))

		decision, err := svc.Check(ctx, hash, shared.ActionURL, "ip-1", "Mozilla/5.0")
		if err != nil {
			t.Fatalf("Entries older than 24h must not block: %v", err)
		}
		if decision.DailyUsage != 0 {
			t.Errorf("Expected zero daily usage, got %d", decision.DailyUsage)
		}
	})

	t.Run("ActionKindsAreIndependent", func(t *testing.T) {
		svc := newTestRateLimit(t)
		hash := svc.HashOrigin("ip-1")

		seedEntries(t, svc, hash, shared.ActionURL, 10, time.Now().Add(-30*time.Minute))

		decision, err := svc.Check(ctx, hash, shared.ActionQR, "ip-1", "Mozilla/5.0")
		if err != nil {
			t.Fatalf("URL entries must not count against QR: %v", err)
		}
		if decision.HourlyUsage != 0 {
			t.Errorf("Expected zero QR usage, got %d", decision.HourlyUsage)
		}
	})

	t.Run("WarningNearCeiling", func(t *testing.T) {
		svc := newTestRateLimit(t)
		hash := svc.HashOrigin("ip-1")

		ceiling := int(svc.configs[shared.ActionURL].HourlyCeiling)
		seedEntries(t, svc, hash, shared.ActionURL, ceiling-1, time.Now().Add(-30*time.Minute))

		decision, err := svc.Check(ctx, hash, shared.ActionURL, "ip-1", "Mozilla/5.0")
		if err != nil {
			t.Fatalf("Expected allow with warning, got %v", err)
		}
		if decision.Warning == "" {
			t.Error("Expected a warning near the ceiling")
		}
	})

	t.Run("AutomationSignatureFlagged", func(t *testing.T) {
		svc := newTestRateLimit(t)
		hash := svc.HashOrigin("ip-1")

		decision, err := svc.Check(ctx, hash, shared.ActionURL, "ip-1", "curl/8.4.0")
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !decision.Suspicious {
			t.Error("Automation user agent should be flagged suspicious")
		}
	})

	t.Run("BurstCountsAllActionKinds", func(t *testing.T) {
		svc := newTestRateLimit(t)
		hash := svc.HashOrigin("ip-1")

		seedEntries(t, svc, hash, shared.ActionQR, 6, time.Now().Add(-30*time.Second))

		decision, err := svc.Check(ctx, hash, shared.ActionURL, "ip-1", "Mozilla/5.0")
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !decision.Suspicious {
			t.Error("A burst of another action kind should still flag the origin")
		}
	})

	t.Run("UnreadableLedgerFailsOpen", func(t *testing.T) {
		svc := newTestRateLimit(t)

		if err := svc.sqlSvc.Db().Migrator().DropTable(&model.RateLimitEntry{}); err != nil {
			t.Fatalf("Failed to drop ledger table: %v", err)
		}

		decision, err := svc.Check(ctx, svc.HashOrigin("ip-1"), shared.ActionURL, "ip-1", "Mozilla/5.0")
		if err != nil {
			t.Fatalf("Unreadable ledger must allow: %v", err)
		}
		if !decision.Allowed {
			t.Error("Expected fail-open decision")
		}
	})

	t.Run("UnknownActionKindAllowed", func(t *testing.T) {
		svc := newTestRateLimit(t)

		decision, err := svc.Check(ctx, svc.HashOrigin("ip-1"), "unknown", "ip-1", "Mozilla/5.0")
		if err != nil || !decision.Allowed {
			t.Errorf("Unconfigured action kinds pass through, got %v %+v", err, decision)
		}
	})
}

func TestSuspiciousUserAgent(t *testing.T) {
	svc := newTestRateLimit(t)

	for _, ua := range []string{"curl/8.4.0", "Wget/1.21", "python-requests/2.31", "Googlebot/2.1"} {
		if !svc.SuspiciousUserAgent(ua) {
			t.Errorf("Expected %q to be flagged", ua)
		}
	}

	for _, ua := range []string{"", "Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0"} {
		if svc.SuspiciousUserAgent(ua) {
			t.Errorf("Expected %q to pass", ua)
		}
	}
}

func TestRateLimitRecord(t *testing.T) {
	ctx := context.Background()
	svc := newTestRateLimit(t)
	hash := svc.HashOrigin("ip-1")

	svc.Record(ctx, hash, shared.ActionURL, "abc1234")

	var count int64
	svc.sqlSvc.Db().Model(&model.RateLimitEntry{}).Where("origin_hash = ?", hash).Count(&count)
	if count != 1 {
		t.Errorf("Expected one ledger entry, got %d", count)
	}
}

func TestAbuseEscalation(t *testing.T) {
	ctx := context.Background()

	t.Run("WarningsAccumulatePerBlock", func(t *testing.T) {
		svc := newTestRateLimit(t)
		hash := svc.HashOrigin("ip-1")

		ceiling := int(svc.configs[shared.ActionURL].HourlyCeiling)
		seedEntries(t, svc, hash, shared.ActionURL, ceiling, time.Now().Add(-10*time.Minute))

		for i := 0; i < 2; i++ {
			if _, err := svc.Check(ctx, hash, shared.ActionURL, "ip-1", "Mozilla/5.0"); err == nil {
				t.Fatal("Expected block")
			}
		}

		var record model.AbuseRecord
		if err := svc.sqlSvc.Db().Where("origin_hash = ?", hash).First(&record).Error; err != nil {
			t.Fatalf("Expected abuse record: %v", err)
		}
		if record.Warnings != 2 {
			t.Errorf("Expected 2 warnings, got %d", record.Warnings)
		}
		if record.PenaltyUntil != nil || record.Banned {
			t.Error("Two warnings should not yet penalize")
		}
	})

	t.Run("PenaltyBlocksBeforeLedgerRead", func(t *testing.T) {
		svc := newTestRateLimit(t)
		hash := svc.HashOrigin("ip-1")

		until := time.Now().Add(time.Hour)
		record := &model.AbuseRecord{
			OriginHash:   hash,
			Warnings:     penaltyWarnings,
			PenaltyUntil: &until,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		if err := svc.sqlSvc.Db().Create(record).Error; err != nil {
			t.Fatalf("Failed to seed abuse record: %v", err)
		}

		decision, err := svc.Check(ctx, hash, shared.ActionURL, "ip-1", "Mozilla/5.0")
		if err == nil {
			t.Fatal("Penalized origin must be blocked")
		}
		if decision.Window != "abuse" {
			t.Errorf("Expected abuse window, got %q", decision.Window)
		}
	})

	t.Run("ExpiredPenaltyLifts", func(t *testing.T) {
		svc := newTestRateLimit(t)
		hash := svc.HashOrigin("ip-1")

		until := time.Now().Add(-time.Minute)
		record := &model.AbuseRecord{
			OriginHash:   hash,
			Warnings:     penaltyWarnings,
			PenaltyUntil: &until,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		if err := svc.sqlSvc.Db().Create(record).Error; err != nil {
			t.Fatalf("Failed to seed abuse record: %v", err)
		}

		if _, err := svc.Check(ctx, hash, shared.ActionURL, "ip-1", "Mozilla/5.0"); err != nil {
			t.Errorf("Expired penalty must lift: %v", err)
		}
	})

	t.Run("BanIsTerminal", func(t *testing.T) {
		svc := newTestRateLimit(t)
		hash := svc.HashOrigin("ip-1")

		record := &model.AbuseRecord{
			OriginHash: hash,
			Warnings:   banWarnings,
			Banned:     true,
			CreatedAt:  time.Now().Add(-365 * 24 * time.Hour),
			UpdatedAt:  time.Now().Add(-365 * 24 * time.Hour),
		}
		if err := svc.sqlSvc.Db().Create(record).Error; err != nil {
			t.Fatalf("Failed to seed abuse record: %v", err)
		}

		if _, err := svc.Check(ctx, hash, shared.ActionURL, "ip-1", "Mozilla/5.0"); err == nil {
			t.Error("Ban must never expire")
		}
	})
}

func TestCleanupOldRecords(t *testing.T) {
	svc := newTestRateLimit(t)
	hash := svc.HashOrigin("ip-1")

	seedEntries(t, svc, hash, shared.ActionURL, 3, time.Now().Add(-31*24*time.Hour))
	seedEntries(t, svc, hash, shared.ActionURL, 2, time.Now().Add(-time.Hour))

	if err := svc.CleanupOldRecords(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	var count int64
	svc.sqlSvc.Db().Model(&model.RateLimitEntry{}).Count(&count)
	if count != 2 {
		t.Errorf("Expected retention to keep 2 entries, got %d", count)
	}
}

package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/snaplink-labs/snaplink_api/dto"
	"github.com/snaplink-labs/snaplink_api/model"
)

type LinkServiceInterface interface {
	Create(ctx context.Context, owner *model.Account, req dto.CreateLinkRequest) (*model.Link, error)
	Get(ctx context.Context, code string) (*model.Link, error)
	Update(ctx context.Context, code, ownerID string, req dto.UpdateLinkRequest) (*model.Link, error)
	Delete(ctx context.Context, code, ownerID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]model.Link, error)
	BaseURL() string
}

type QRServiceInterface interface {
	Create(ctx context.Context, owner *model.Account, req dto.CreateQRRequest) (*model.QRCode, error)
	Get(ctx context.Context, code string) (*model.QRCode, error)
	Update(ctx context.Context, code string, owner *model.Account, req dto.UpdateQRRequest) (*model.QRCode, error)
	Claim(ctx context.Context, code string, owner *model.Account) (*model.QRCode, error)
	Delete(ctx context.Context, code, ownerID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]model.QRCode, error)
	ImageURL(ctx context.Context, qr *model.QRCode) string
}

type DispatchServiceInterface interface {
	Resolve(ctx context.Context, code, credential string, meta dto.RequestMeta) (string, error)
}

type RateLimitServiceInterface interface {
	HashOrigin(address string) string
	Check(ctx context.Context, originHash, actionKind, address, userAgent string) (*dto.RateLimitDecision, error)
	Record(ctx context.Context, originHash, actionKind, metadata string)
	SuspiciousUserAgent(userAgent string) bool
}

type CounterServiceInterface interface {
	Usage(ctx context.Context, accountID string) (map[string]int64, error)
}

type AnalyticsServiceInterface interface {
	Series(ctx context.Context, resourceID string, from, to time.Time) (*dto.AnalyticsSeriesResponse, error)
	RecentByOwner(ctx context.Context, ownerID string, limit int) ([]model.AnalyticsEvent, error)
}

type BillingServiceInterface interface {
	ApplyTierChange(ctx context.Context, req dto.TierChangeRequest) error
}

const accountKey = "account"

// accountFromCtx returns the authenticated account or nil for anonymous
// requests. Never fabricates an identity.
func accountFromCtx(c *fiber.Ctx) *model.Account {
	account, ok := c.Locals(accountKey).(*model.Account)
	if !ok {
		return nil
	}
	return account
}

// requestMeta collects requester context once at the boundary. Suspicion
// here is the user-agent heuristic; the rate limiter may add its burst
// signal on top for anonymous creations.
func requestMeta(c *fiber.Ctx, rateLimitSvc RateLimitServiceInterface) dto.RequestMeta {
	ip := getClientIP(c)
	userAgent := c.Get(fiber.HeaderUserAgent)
	return dto.RequestMeta{
		OriginHash: rateLimitSvc.HashOrigin(ip),
		Address:    ip,
		UserAgent:  userAgent,
		Referrer:   c.Get(fiber.HeaderReferer),
		Suspicious: rateLimitSvc.SuspiciousUserAgent(userAgent),
	}
}

func getClientIP(c *fiber.Ctx) string {
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	realIP := c.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	cfIP := c.Get("CF-Connecting-IP")
	if cfIP != "" {
		return cfIP
	}

	return c.IP()
}

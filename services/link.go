package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/snaplink-labs/snaplink_api/dto"
	"github.com/snaplink-labs/snaplink_api/model"
	"github.com/snaplink-labs/snaplink_api/shared"
)

// LinkService is the short URL registry. Identifier reservation is a
// conditional insert against the unique code index, never a read followed by
// a write.
type LinkService struct {
	appContext.DefaultService

	baseURL string

	sqlSvc       *SqlService
	counterSvc   *CounterService
	analyticsSvc *AnalyticsService
}

const LINK_SVC = "link_svc"

const codeAttempts = 5

func (svc LinkService) Id() string {
	return LINK_SVC
}

func (svc *LinkService) Configure(ctx *appContext.Context) error {
	svc.baseURL = os.Getenv("BASE_URL")
	if svc.baseURL == "" {
		svc.baseURL = "http://localhost:8000"
	}
	svc.baseURL = strings.TrimRight(svc.baseURL, "/")

	return svc.DefaultService.Configure(ctx)
}

func (svc *LinkService) Start() error {
	svc.sqlSvc = svc.Service(SQL_SVC).(*SqlService)
	svc.counterSvc = svc.Service(COUNTER_SVC).(*CounterService)
	svc.analyticsSvc = svc.Service(ANALYTICS_SVC).(*AnalyticsService)
	return nil
}

func (svc *LinkService) BaseURL() string {
	return svc.baseURL
}

// Create registers a new short URL. For authenticated owners the tier
// counter is claimed first and released again if the insert fails, so the
// admission itself is atomic. Anonymous creations carry no counter; the
// caller has already passed the rate limiter.
func (svc *LinkService) Create(ctx context.Context, owner *model.Account, req dto.CreateLinkRequest) (*model.Link, error) {
	target, err := NormalizeTarget(req.Target)
	if err != nil {
		return nil, shared.NewBadRequestError(err, "Invalid target URL")
	}

	var ownerID *string
	if owner != nil {
		if _, err := svc.counterSvc.CheckAndIncrement(ctx, owner.ID, shared.KindURL, owner.Tier); err != nil {
			return nil, err
		}
		ownerID = &owner.ID
	}

	link, err := svc.insertWithCode(ctx, req, target, ownerID)
	if err != nil {
		if owner != nil {
			if decErr := svc.counterSvc.Decrement(ctx, owner.ID, shared.KindURL); decErr != nil {
				log.WithError(decErr).WithField("account", owner.ID).
					Error("Failed to release counter after create failure")
			}
		}
		return nil, err
	}

	if aerr := svc.analyticsSvc.Append(ctx, EventInput{
		Kind:         shared.EventCreated,
		ResourceID:   link.ID,
		ResourceKind: shared.KindURL,
		OwnerID:      ownerID,
		OriginHash:   req.Meta.OriginHash,
		UserAgent:    req.Meta.UserAgent,
		Referrer:     req.Meta.Referrer,
		Suspicious:   req.Meta.Suspicious,
	}); aerr != nil {
		log.WithError(aerr).Debug("Create event append failed")
	}

	return link, nil
}

func (svc *LinkService) insertWithCode(ctx context.Context, req dto.CreateLinkRequest, target string, ownerID *string) (*model.Link, error) {
	now := time.Now()

	link := &model.Link{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Target:    target,
		Title:     req.Title,
		Status:    shared.StatusActive,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, shared.NewInternalError(err, "Failed to hash password")
		}
		hashStr := string(hash)
		link.PasswordHash = &hashStr
	}

	if req.Code != "" {
		link.Code = req.Code
		if err := svc.sqlSvc.Db().WithContext(ctx).Create(link).Error; err != nil {
			if IsDuplicate(err) {
				return nil, shared.NewConflictError(err, "Code already taken")
			}
			return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to create link")
		}
		return link, nil
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		link.Code = shared.GenerateCode(shared.CodeLength)
		err := svc.sqlSvc.Db().WithContext(ctx).Create(link).Error
		if err == nil {
			return link, nil
		}
		if !IsDuplicate(err) {
			return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to create link")
		}
	}

	// Every short candidate collided. A longer code makes a further
	// collision effectively impossible, but the insert still goes through
	// the same conditional write.
	link.Code = shared.GenerateCode(shared.FallbackCodeLength)
	if err := svc.sqlSvc.Db().WithContext(ctx).Create(link).Error; err != nil {
		if IsDuplicate(err) {
			return nil, shared.NewConflictError(err, "Code generation exhausted")
		}
		return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to create link")
	}
	return link, nil
}

// Get resolves a code without any ownership check; used by the public
// lookup endpoint.
func (svc *LinkService) Get(ctx context.Context, code string) (*model.Link, error) {
	var link model.Link
	err := svc.sqlSvc.Db().WithContext(ctx).
		Where("code = ?", code).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(err, "Not Found")
		}
		return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Lookup failed")
	}
	return &link, nil
}

// getOwned loads a link and verifies ownership before any mutation. The
// error for a mismatched owner never distinguishes "exists but not yours".
func (svc *LinkService) getOwned(ctx context.Context, code, ownerID string) (*model.Link, error) {
	link, err := svc.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if link.OwnerID == nil || *link.OwnerID != ownerID {
		return nil, shared.NewForbiddenError(fmt.Errorf("owner mismatch for %s", code), "Access denied")
	}
	return link, nil
}

func (svc *LinkService) Update(ctx context.Context, code, ownerID string, req dto.UpdateLinkRequest) (*model.Link, error) {
	link, err := svc.getOwned(ctx, code, ownerID)
	if err != nil {
		return nil, err
	}

	if req.Target != nil {
		target, err := NormalizeTarget(*req.Target)
		if err != nil {
			return nil, shared.NewBadRequestError(err, "Invalid target URL")
		}
		link.Target = target
	}
	if req.Title != nil {
		link.Title = *req.Title
	}
	if req.Status != nil {
		link.Status = *req.Status
	}
	if req.ExpiresAt != nil {
		link.ExpiresAt = req.ExpiresAt
	}
	if req.Password != nil {
		if *req.Password == "" {
			link.PasswordHash = nil
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, shared.NewInternalError(err, "Failed to hash password")
			}
			hashStr := string(hash)
			link.PasswordHash = &hashStr
		}
	}
	link.UpdatedAt = time.Now()

	if err := svc.sqlSvc.Db().WithContext(ctx).Save(link).Error; err != nil {
		return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to update link")
	}

	if aerr := svc.analyticsSvc.Append(ctx, EventInput{
		Kind:         shared.EventUpdated,
		ResourceID:   link.ID,
		ResourceKind: shared.KindURL,
		OwnerID:      link.OwnerID,
	}); aerr != nil {
		log.WithError(aerr).Debug("Update event append failed")
	}

	return link, nil
}

// Delete removes a link and releases exactly the url counter, never any
// other kind.
func (svc *LinkService) Delete(ctx context.Context, code, ownerID string) error {
	link, err := svc.getOwned(ctx, code, ownerID)
	if err != nil {
		return err
	}

	if err := svc.sqlSvc.Db().WithContext(ctx).Delete(&model.Link{}, "id = ?", link.ID).Error; err != nil {
		return shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to delete link")
	}

	if err := svc.counterSvc.Decrement(ctx, ownerID, shared.KindURL); err != nil {
		return err
	}

	if aerr := svc.analyticsSvc.Append(ctx, EventInput{
		Kind:         shared.EventDeleted,
		ResourceID:   link.ID,
		ResourceKind: shared.KindURL,
		OwnerID:      link.OwnerID,
	}); aerr != nil {
		log.WithError(aerr).Debug("Delete event append failed")
	}

	return nil
}

// ListByOwner returns the owner's links, newest first.
func (svc *LinkService) ListByOwner(ctx context.Context, ownerID string) ([]model.Link, error) {
	var links []model.Link
	err := svc.sqlSvc.Db().WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&links).Error
	if err != nil {
		return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to list links")
	}
	return links, nil
}

// NormalizeTarget validates and canonicalizes a redirect target. Only
// absolute http/https URLs are ever stored.
func NormalizeTarget(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("only http/https targets allowed")
	}
	if parsed.Host == "" {
		return "", errors.New("target missing host")
	}
	return parsed.String(), nil
}

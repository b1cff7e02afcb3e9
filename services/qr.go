package services

import (
	"context"
	"errors"
	"fmt"
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

// QRService is the QR code registry. Static codes carry their payload
// literally and cannot be re-pointed; dynamic codes dispatch through the
// short code and consume the scarcer qr_dynamic counter.
//
// Ownership is fixed at creation. An anonymous code only changes hands
// through the explicit Claim operation, never as a side effect of update.
type QRService struct {
	appContext.DefaultService

	sqlSvc       *SqlService
	counterSvc   *CounterService
	analyticsSvc *AnalyticsService
	linkSvc      *LinkService
	renderSvc    *QRRenderService
	storageSvc   *StorageService
}

const QR_SVC = "qr_svc"

// Free-tier dynamic codes allow one content edit per rolling day, measured
// from the code's own last edit.
const dynamicEditInterval = 24 * time.Hour

func (svc QRService) Id() string {
	return QR_SVC
}

func (svc *QRService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *QRService) Start() error {
	svc.sqlSvc = svc.Service(SQL_SVC).(*SqlService)
	svc.counterSvc = svc.Service(COUNTER_SVC).(*CounterService)
	svc.analyticsSvc = svc.Service(ANALYTICS_SVC).(*AnalyticsService)
	svc.linkSvc = svc.Service(LINK_SVC).(*LinkService)
	svc.renderSvc = svc.Service(QR_RENDER_SVC).(*QRRenderService)
	svc.storageSvc = svc.Service(STORAGE_SVC).(*StorageService)
	return nil
}

func (svc *QRService) Create(ctx context.Context, owner *model.Account, req dto.CreateQRRequest) (*model.QRCode, error) {
	if req.Kind == model.QRKindDynamic && req.Target == "" {
		return nil, shared.NewBadRequestError(nil, "Dynamic QR codes require a target")
	}

	target := ""
	if req.Target != "" {
		normalized, err := NormalizeTarget(req.Target)
		if err != nil {
			return nil, shared.NewBadRequestError(err, "Invalid target URL")
		}
		target = normalized
	}

	counterKind := shared.KindQRStatic
	if req.Kind == model.QRKindDynamic {
		counterKind = shared.KindQRDynamic
	}

	var ownerID *string
	if owner != nil {
		if _, err := svc.counterSvc.CheckAndIncrement(ctx, owner.ID, counterKind, owner.Tier); err != nil {
			return nil, err
		}
		ownerID = &owner.ID
	}

	qr, err := svc.insertWithCode(ctx, req, target, ownerID)
	if err != nil {
		if owner != nil {
			if decErr := svc.counterSvc.Decrement(ctx, owner.ID, counterKind); decErr != nil {
				log.WithError(decErr).WithField("account", owner.ID).
					Error("Failed to release counter after create failure")
			}
		}
		return nil, err
	}

	svc.renderAndStore(ctx, qr)

	if aerr := svc.analyticsSvc.Append(ctx, EventInput{
		Kind:         shared.EventCreated,
		ResourceID:   qr.ID,
		ResourceKind: qr.CounterKind(),
		OwnerID:      ownerID,
		OriginHash:   req.Meta.OriginHash,
		UserAgent:    req.Meta.UserAgent,
		Referrer:     req.Meta.Referrer,
		Suspicious:   req.Meta.Suspicious,
	}); aerr != nil {
		log.WithError(aerr).Debug("Create event append failed")
	}

	return qr, nil
}

func (svc *QRService) insertWithCode(ctx context.Context, req dto.CreateQRRequest, target string, ownerID *string) (*model.QRCode, error) {
	now := time.Now()

	qr := &model.QRCode{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Kind:      req.Kind,
		Content:   req.Content,
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
		qr.PasswordHash = &hashStr
	}

	if req.Code != "" {
		qr.Code = req.Code
		if err := svc.sqlSvc.Db().WithContext(ctx).Create(qr).Error; err != nil {
			if IsDuplicate(err) {
				return nil, shared.NewConflictError(err, "Code already taken")
			}
			return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to create QR code")
		}
		return qr, nil
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		qr.Code = shared.GenerateCode(shared.CodeLength)
		err := svc.sqlSvc.Db().WithContext(ctx).Create(qr).Error
		if err == nil {
			return qr, nil
		}
		if !IsDuplicate(err) {
			return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to create QR code")
		}
	}

	qr.Code = shared.GenerateCode(shared.FallbackCodeLength)
	if err := svc.sqlSvc.Db().WithContext(ctx).Create(qr).Error; err != nil {
		if IsDuplicate(err) {
			return nil, shared.NewConflictError(err, "Code generation exhausted")
		}
		return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to create QR code")
	}
	return qr, nil
}

// renderAndStore produces the QR image and saves it to object storage.
// Image delivery is a collaborator concern; failures never fail the create.
func (svc *QRService) renderAndStore(ctx context.Context, qr *model.QRCode) {
	if !svc.storageSvc.Enabled() {
		return
	}

	payload := qr.Content
	if qr.Kind == model.QRKindDynamic {
		payload = svc.linkSvc.BaseURL() + "/" + qr.Code
	}

	img, err := svc.renderSvc.Render(payload, defaultQRSize)
	if err != nil {
		log.WithError(err).WithField("code", qr.Code).Warn("QR render failed")
		return
	}

	key := "qr/" + qr.ID + ".png"
	if err := svc.storageSvc.PutImage(ctx, key, img); err != nil {
		log.WithError(err).WithField("code", qr.Code).Warn("QR image store failed")
		return
	}

	qr.ImageKey = key
	if err := svc.sqlSvc.Db().WithContext(ctx).Model(qr).Update("image_key", key).Error; err != nil {
		log.WithError(err).WithField("code", qr.Code).Warn("Failed to persist image key")
	}
}

func (svc *QRService) Get(ctx context.Context, code string) (*model.QRCode, error) {
	var qr model.QRCode
	err := svc.sqlSvc.Db().WithContext(ctx).
		Where("code = ?", code).
		First(&qr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(err, "Not Found")
		}
		return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Lookup failed")
	}
	return &qr, nil
}

func (svc *QRService) getOwned(ctx context.Context, code, ownerID string) (*model.QRCode, error) {
	qr, err := svc.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if qr.OwnerID == nil || *qr.OwnerID != ownerID {
		return nil, shared.NewForbiddenError(fmt.Errorf("owner mismatch for %s", code), "Access denied")
	}
	return qr, nil
}

func (svc *QRService) Update(ctx context.Context, code string, owner *model.Account, req dto.UpdateQRRequest) (*model.QRCode, error) {
	qr, err := svc.getOwned(ctx, code, owner.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	contentEdit := req.Content != nil || req.Target != nil

	if contentEdit && qr.Kind == model.QRKindDynamic && owner.Tier == shared.TierFree {
		if qr.LastEditAt != nil && now.Sub(*qr.LastEditAt) < dynamicEditInterval {
			next := qr.LastEditAt.Add(dynamicEditInterval)
			return nil, shared.NewRateLimitError(shared.RateLimitData{
				Window:     "edit",
				RetryAfter: int64(time.Until(next).Seconds()),
				Guidance:   "Free tier allows one dynamic QR edit per day.",
			}, "Edit limit reached")
		}
	}

	effectiveKind := qr.Kind
	if req.Kind != nil {
		effectiveKind = *req.Kind
	}

	if req.Content != nil {
		qr.Content = *req.Content
	}
	if req.Target != nil {
		target, err := NormalizeTarget(*req.Target)
		if err != nil {
			return nil, shared.NewBadRequestError(err, "Invalid target URL")
		}
		qr.Target = target
	}
	if effectiveKind == model.QRKindDynamic && qr.Target == "" {
		return nil, shared.NewBadRequestError(nil, "Dynamic QR codes require a target")
	}
	if req.Title != nil {
		qr.Title = *req.Title
	}
	if req.Status != nil {
		qr.Status = *req.Status
	}
	if req.ExpiresAt != nil {
		qr.ExpiresAt = req.ExpiresAt
	}
	if req.Password != nil {
		if *req.Password == "" {
			qr.PasswordHash = nil
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, shared.NewInternalError(err, "Failed to hash password")
			}
			hashStr := string(hash)
			qr.PasswordHash = &hashStr
		}
	}

	if contentEdit {
		qr.LastEditAt = &now
	}
	qr.UpdatedAt = now

	// The counter swap comes last so every validation failure above leaves
	// the counters untouched.
	oldCounter := qr.CounterKind()
	converted := false
	if effectiveKind != qr.Kind {
		if err := svc.convertKind(ctx, qr, owner, effectiveKind); err != nil {
			return nil, err
		}
		converted = true
	}

	if err := svc.sqlSvc.Db().WithContext(ctx).Save(qr).Error; err != nil {
		if converted {
			svc.revertConversion(ctx, owner.ID, oldCounter, qr.CounterKind())
		}
		return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to update QR code")
	}

	if contentEdit {
		svc.renderAndStore(ctx, qr)
	}

	if aerr := svc.analyticsSvc.Append(ctx, EventInput{
		Kind:         shared.EventUpdated,
		ResourceID:   qr.ID,
		ResourceKind: qr.CounterKind(),
		OwnerID:      qr.OwnerID,
	}); aerr != nil {
		log.WithError(aerr).Debug("Update event append failed")
	}

	return qr, nil
}

// convertKind re-checks the destination ceiling exactly as creation would,
// then releases the old kind: a static code cannot slip into the dynamic
// pool past its limit.
func (svc *QRService) convertKind(ctx context.Context, qr *model.QRCode, owner *model.Account, newKind string) error {
	oldCounter := qr.CounterKind()
	newCounter := shared.KindQRStatic
	if newKind == model.QRKindDynamic {
		newCounter = shared.KindQRDynamic
	}

	if _, err := svc.counterSvc.CheckAndIncrement(ctx, owner.ID, newCounter, owner.Tier); err != nil {
		return err
	}
	if err := svc.counterSvc.Decrement(ctx, owner.ID, oldCounter); err != nil {
		if relErr := svc.counterSvc.Decrement(ctx, owner.ID, newCounter); relErr != nil {
			log.WithError(relErr).WithField("account", owner.ID).
				Error("Failed to release counter after aborted conversion")
		}
		return err
	}

	qr.Kind = newKind
	return nil
}

// revertConversion undoes a counter swap after the registry write fails.
// The row still carries the old kind, so the counters have to match it
// again or the account's usage drifts for good.
func (svc *QRService) revertConversion(ctx context.Context, accountID, oldCounter, newCounter string) {
	if err := svc.counterSvc.Increment(ctx, accountID, oldCounter); err != nil {
		log.WithError(err).WithField("account", accountID).
			Error("Failed to restore counter after update failure")
	}
	if err := svc.counterSvc.Decrement(ctx, accountID, newCounter); err != nil {
		log.WithError(err).WithField("account", accountID).
			Error("Failed to release counter after update failure")
	}
}

// Claim transfers an anonymous QR code to the calling account. This is the
// only path that changes ownership, and it consumes the account's counter
// exactly as a fresh creation would.
func (svc *QRService) Claim(ctx context.Context, code string, owner *model.Account) (*model.QRCode, error) {
	qr, err := svc.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	if qr.OwnerID != nil {
		return nil, shared.NewForbiddenError(fmt.Errorf("code %s already owned", code), "Access denied")
	}

	if _, err := svc.counterSvc.CheckAndIncrement(ctx, owner.ID, qr.CounterKind(), owner.Tier); err != nil {
		return nil, err
	}

	res := svc.sqlSvc.Db().WithContext(ctx).
		Model(&model.QRCode{}).
		Where("id = ? AND owner_id IS NULL", qr.ID).
		Updates(map[string]interface{}{"owner_id": owner.ID, "updated_at": time.Now()})
	if res.Error != nil {
		_ = svc.counterSvc.Decrement(ctx, owner.ID, qr.CounterKind())
		return nil, shared.NewInternalError(svc.sqlSvc.HandleError(res.Error), "Failed to claim QR code")
	}
	if res.RowsAffected == 0 {
		// Lost the race to another claimant.
		_ = svc.counterSvc.Decrement(ctx, owner.ID, qr.CounterKind())
		return nil, shared.NewConflictError(fmt.Errorf("code %s claimed concurrently", code), "Code already claimed")
	}

	qr.OwnerID = &owner.ID

	if aerr := svc.analyticsSvc.Append(ctx, EventInput{
		Kind:         shared.EventClaimed,
		ResourceID:   qr.ID,
		ResourceKind: qr.CounterKind(),
		OwnerID:      qr.OwnerID,
	}); aerr != nil {
		log.WithError(aerr).Debug("Claim event append failed")
	}

	return qr, nil
}

// Delete removes a QR code and releases the counter matching its actual
// kind: deleting a static code never frees a dynamic slot.
func (svc *QRService) Delete(ctx context.Context, code, ownerID string) error {
	qr, err := svc.getOwned(ctx, code, ownerID)
	if err != nil {
		return err
	}

	if err := svc.sqlSvc.Db().WithContext(ctx).Delete(&model.QRCode{}, "id = ?", qr.ID).Error; err != nil {
		return shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to delete QR code")
	}

	if err := svc.counterSvc.Decrement(ctx, ownerID, qr.CounterKind()); err != nil {
		return err
	}

	if err := svc.storageSvc.DeleteImage(ctx, qr.ImageKey); err != nil {
		log.WithError(err).WithField("code", qr.Code).Warn("Failed to delete QR image")
	}

	if aerr := svc.analyticsSvc.Append(ctx, EventInput{
		Kind:         shared.EventDeleted,
		ResourceID:   qr.ID,
		ResourceKind: qr.CounterKind(),
		OwnerID:      qr.OwnerID,
	}); aerr != nil {
		log.WithError(aerr).Debug("Delete event append failed")
	}

	return nil
}

func (svc *QRService) ListByOwner(ctx context.Context, ownerID string) ([]model.QRCode, error) {
	var codes []model.QRCode
	err := svc.sqlSvc.Db().WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&codes).Error
	if err != nil {
		return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to list QR codes")
	}
	return codes, nil
}

// ImageURL resolves a presigned URL for a code's stored image.
func (svc *QRService) ImageURL(ctx context.Context, qr *model.QRCode) string {
	url, err := svc.storageSvc.ImageURL(ctx, qr.ImageKey, 24*time.Hour)
	if err != nil {
		log.WithError(err).WithField("code", qr.Code).Debug("Presign failed")
		return ""
	}
	return url
}

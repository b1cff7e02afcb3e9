package services

import (
	"context"
	"errors"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/snaplink-labs/snaplink_api/dto"
	"github.com/snaplink-labs/snaplink_api/model"
	"github.com/snaplink-labs/snaplink_api/shared"
)

// BillingService applies plan changes delivered by the payment provider.
// Checkout and webhook verification are the provider's problem; all this
// service guarantees is that redelivered events are no-ops.
type BillingService struct {
	appContext.DefaultService

	sqlSvc *SqlService
}

const BILLING_SVC = "billing_svc"

func (svc BillingService) Id() string {
	return BILLING_SVC
}

func (svc *BillingService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *BillingService) Start() error {
	svc.sqlSvc = svc.Service(SQL_SVC).(*SqlService)
	return nil
}

// ApplyTierChange moves an account to a new tier. The event id is compared
// and recorded inside one transaction, so a redelivered webhook observes its
// own id and stops.
func (svc *BillingService) ApplyTierChange(ctx context.Context, req dto.TierChangeRequest) error {
	if !shared.KnownTier(req.NewTier) {
		return shared.NewBadRequestError(nil, "Unknown tier")
	}

	return svc.sqlSvc.Db().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account model.Account
		err := tx.Where("id = ?", req.SubjectID).First(&account).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.NewNotFoundError(err, "Not Found")
			}
			return shared.NewInternalError(svc.sqlSvc.HandleError(err), "Account lookup failed")
		}

		if account.LastTierEventID == req.EventID {
			log.WithFields(log.Fields{
				"account": account.ID,
				"event":   req.EventID,
			}).Info("Tier change event already applied")
			return nil
		}

		account.Tier = req.NewTier
		account.LastTierEventID = req.EventID
		account.UpdatedAt = time.Now()

		if err := tx.Save(&account).Error; err != nil {
			return shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to apply tier change")
		}

		log.WithFields(log.Fields{
			"account": account.ID,
			"tier":    req.NewTier,
		}).Info("Applied tier change")
		return nil
	})
}

package services

import (
	"context"
	"errors"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/snaplink-labs/snaplink_api/model"
	"github.com/snaplink-labs/snaplink_api/shared"
)

// Identity is what the external identity provider vouches for.
type Identity struct {
	SubjectID     string
	Email         string
	EmailVerified bool
}

// IdentityVerifier exchanges an external credential for a stable subject.
// OAuth specifics live entirely behind this interface; a nil result means
// the credential did not verify.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// AccountService resolves subjects to accounts and provisions an account
// row on first sight of a verified identity.
type AccountService struct {
	appContext.DefaultService

	sqlSvc     *SqlService
	counterSvc *CounterService
}

const ACCOUNT_SVC = "account_svc"

func (svc AccountService) Id() string {
	return ACCOUNT_SVC
}

func (svc *AccountService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *AccountService) Start() error {
	svc.sqlSvc = svc.Service(SQL_SVC).(*SqlService)
	svc.counterSvc = svc.Service(COUNTER_SVC).(*CounterService)
	return nil
}

func (svc *AccountService) Get(ctx context.Context, id string) (*model.Account, error) {
	var account model.Account
	err := svc.sqlSvc.Db().WithContext(ctx).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewUnauthorizedError(err, "Unknown account")
		}
		return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Account lookup failed")
	}
	return &account, nil
}

// EnsureFromIdentity returns the account for a verified identity, creating
// it on the free tier the first time the subject is seen.
func (svc *AccountService) EnsureFromIdentity(ctx context.Context, identity *Identity) (*model.Account, error) {
	account, err := svc.Get(ctx, identity.SubjectID)
	if err == nil {
		return account, nil
	}
	if appErr, ok := shared.GetAppError(err); !ok || appErr.StatusCode != 401 {
		return nil, err
	}

	now := time.Now()
	account = &model.Account{
		ID:            identity.SubjectID,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Tier:          shared.TierFree,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := svc.sqlSvc.Db().WithContext(ctx).Create(account).Error; err != nil {
		if IsDuplicate(err) {
			// Concurrent first sign-in; the row exists now.
			return svc.Get(ctx, identity.SubjectID)
		}
		return nil, shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to provision account")
	}

	log.WithField("account", account.ID).Info("Provisioned new account")
	return account, nil
}

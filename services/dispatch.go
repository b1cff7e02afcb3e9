package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/snaplink-labs/snaplink_api/dto"
	"github.com/snaplink-labs/snaplink_api/model"
	"github.com/snaplink-labs/snaplink_api/shared"
)

// DispatchService is the public redirect hot path. One lookup walks the gate
// sequence: missing code, expiry (which dominates the status flag), disabled
// status, then the password gate, and only a fully deliverable resource
// counts a hit and emits an analytics event.
//
// The hit increment is pushed down to the store as a single expression; the
// application never read-modify-writes the counter. The increment and the
// analytics append carry no mutual ordering, but both are attempted before
// the redirect is returned, and a failed increment fails the dispatch.
type DispatchService struct {
	appContext.DefaultService

	sqlSvc       *SqlService
	linkSvc      *LinkService
	qrSvc        *QRService
	analyticsSvc *AnalyticsService
	geoSvc       *GeolocationService
	monitorSvc   *MonitoringService
}

const DISPATCH_SVC = "dispatch_svc"

func (svc DispatchService) Id() string {
	return DISPATCH_SVC
}

func (svc *DispatchService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *DispatchService) Start() error {
	svc.sqlSvc = svc.Service(SQL_SVC).(*SqlService)
	svc.linkSvc = svc.Service(LINK_SVC).(*LinkService)
	svc.qrSvc = svc.Service(QR_SVC).(*QRService)
	svc.analyticsSvc = svc.Service(ANALYTICS_SVC).(*AnalyticsService)
	svc.geoSvc = svc.Service(GEOLOCATION_SVC).(*GeolocationService)
	svc.monitorSvc = svc.Service(MONITORING_SVC).(*MonitoringService)
	return nil
}

// Resolve maps an inbound code to its redirect target, applying every gate.
// The credential is only consulted for password-protected resources.
func (svc *DispatchService) Resolve(ctx context.Context, code, credential string, meta dto.RequestMeta) (string, error) {
	now := time.Now()

	if link, err := svc.linkSvc.Get(ctx, code); err == nil {
		target, gateErr := svc.applyGates(link.Expired(now), link.Status, link.PasswordHash, link.Target, credential)
		if gateErr != nil {
			return "", gateErr
		}
		if err := svc.deliver(ctx, &model.Link{}, link.ID, shared.KindURL, "hits", shared.EventClicked, link.OwnerID, meta); err != nil {
			return "", err
		}
		return target, nil
	} else if appErr, ok := shared.GetAppError(err); !ok || appErr.StatusCode != http.StatusNotFound {
		return "", err
	}

	qr, err := svc.qrSvc.Get(ctx, code)
	if err != nil {
		return "", err
	}
	if qr.Kind != model.QRKindDynamic {
		// Static codes never dispatch; their payload lives in the image.
		return "", shared.NewNotFoundError(fmt.Errorf("static code %s has no dispatch target", code), "Not Found")
	}

	target, gateErr := svc.applyGates(qr.Expired(now), qr.Status, qr.PasswordHash, qr.Target, credential)
	if gateErr != nil {
		return "", gateErr
	}
	if err := svc.deliver(ctx, &model.QRCode{}, qr.ID, qr.CounterKind(), "scans", shared.EventScanned, qr.OwnerID, meta); err != nil {
		return "", err
	}
	return target, nil
}

// applyGates walks the state machine shared by both resource kinds.
func (svc *DispatchService) applyGates(expired bool, status string, passwordHash *string, target, credential string) (string, error) {
	if expired {
		return "", shared.NewGoneError(nil, "Link expired")
	}
	if status != shared.StatusActive {
		return "", shared.NewGoneError(nil, "Link disabled")
	}
	if passwordHash != nil {
		if credential == "" {
			return "", shared.NewUnauthorizedError(nil, "Password required")
		}
		// bcrypt comparison is constant-time by construction.
		if bcrypt.CompareHashAndPassword([]byte(*passwordHash), []byte(credential)) != nil {
			return "", shared.NewForbiddenError(nil, "Invalid password")
		}
	}
	return target, nil
}

// deliver performs both redirect side effects. The counter increment is a
// hard requirement; the analytics append is best-effort.
func (svc *DispatchService) deliver(ctx context.Context, m interface{}, resourceID, resourceKind, column, eventKind string, ownerID *string, meta dto.RequestMeta) error {
	err := svc.sqlSvc.Db().WithContext(ctx).
		Model(m).
		Where("id = ?", resourceID).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
	if err != nil {
		return shared.NewInternalError(svc.sqlSvc.HandleError(err), "Failed to record hit")
	}

	country := ""
	if svc.geoSvc != nil {
		if loc, err := svc.geoSvc.GetLocationByIP(meta.Address); err == nil {
			country = loc
		}
	}

	if aerr := svc.analyticsSvc.Append(ctx, EventInput{
		Kind:         eventKind,
		ResourceID:   resourceID,
		ResourceKind: resourceKind,
		OwnerID:      ownerID,
		OriginHash:   meta.OriginHash,
		UserAgent:    meta.UserAgent,
		Referrer:     meta.Referrer,
		Country:      country,
		Suspicious:   meta.Suspicious,
	}); aerr != nil {
		log.WithError(aerr).WithField("resource", resourceID).
			Warn("Dispatch analytics append failed")
	}

	if svc.monitorSvc != nil {
		svc.monitorSvc.RecordDispatch(resourceKind)
	}

	return nil
}

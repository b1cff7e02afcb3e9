package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/snaplink-labs/snaplink_api/dto"
	"github.com/snaplink-labs/snaplink_api/shared"
)

type AnalyticsHandler struct {
	analyticsSvc AnalyticsServiceInterface
	counterSvc   CounterServiceInterface
	linkSvc      LinkServiceInterface
	qrSvc        QRServiceInterface
}

func NewAnalyticsHandler(analyticsSvc AnalyticsServiceInterface, counterSvc CounterServiceInterface, linkSvc LinkServiceInterface, qrSvc QRServiceInterface) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsSvc: analyticsSvc,
		counterSvc:   counterSvc,
		linkSvc:      linkSvc,
		qrSvc:        qrSvc,
	}
}

const defaultSeriesWindow = 30 * 24 * time.Hour

// @Summary Resource Analytics
// @Description Daily event series for an owned link or QR code
// @Tags analytics
// @Produce json
// @Security Bearer
// @Param code path string true "Short code"
// @Param from query string false "Range start (RFC3339), defaults to 30 days ago"
// @Param to query string false "Range end (RFC3339), defaults to now"
// @Success 200 {object} shared.Response{data=dto.AnalyticsSeriesResponse}
// @Router /api/v1/analytics/{code} [get]
func (h *AnalyticsHandler) GetSeries(c *fiber.Ctx) error {
	account := accountFromCtx(c)
	code := c.Params("code")

	resourceID, resourceKind, ownerID, err := h.resolveResource(c, code)
	if err != nil {
		return err
	}

	if ownerID == nil || *ownerID != account.ID {
		return shared.NewForbiddenError(nil, "Access denied")
	}

	from, to, err := parseRange(c)
	if err != nil {
		return err
	}

	series, err := h.analyticsSvc.Series(c.UserContext(), resourceID, from, to)
	if err != nil {
		return err
	}
	series.ResourceKind = resourceKind

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", series)
}

// @Summary Recent Events
// @Description Newest analytics events across the account's resources
// @Tags analytics
// @Produce json
// @Security Bearer
// @Param limit query int false "Maximum events to return, defaults to 100"
// @Success 200 {object} shared.Response{data=dto.RecentEventsResponse}
// @Router /api/v1/analytics [get]
func (h *AnalyticsHandler) GetRecent(c *fiber.Ctx) error {
	account := accountFromCtx(c)

	events, err := h.analyticsSvc.RecentByOwner(c.UserContext(), account.ID, c.QueryInt("limit"))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", dto.RecentEventsResponse{
		Events: events,
		Total:  len(events),
	})
}

// @Summary Account Usage
// @Description Current usage counters for the authenticated account
// @Tags analytics
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=dto.UsageResponse}
// @Router /api/v1/usage [get]
func (h *AnalyticsHandler) GetUsage(c *fiber.Ctx) error {
	account := accountFromCtx(c)

	usage, err := h.counterSvc.Usage(c.UserContext(), account.ID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", dto.UsageResponse{
		Tier:  account.Tier,
		Usage: usage,
	})
}

func (h *AnalyticsHandler) resolveResource(c *fiber.Ctx, code string) (id, kind string, ownerID *string, err error) {
	link, err := h.linkSvc.Get(c.UserContext(), code)
	if err == nil {
		return link.ID, shared.KindURL, link.OwnerID, nil
	}
	if appErr, ok := shared.GetAppError(err); !ok || appErr.StatusCode != fiber.StatusNotFound {
		return "", "", nil, err
	}

	qr, err := h.qrSvc.Get(c.UserContext(), code)
	if err != nil {
		return "", "", nil, err
	}
	return qr.ID, qr.CounterKind(), qr.OwnerID, nil
}

func parseRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.Add(-defaultSeriesWindow)
	to := now

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, shared.NewBadRequestError(err, "Invalid from timestamp")
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, shared.NewBadRequestError(err, "Invalid to timestamp")
		}
		to = parsed
	}

	if !to.After(from) {
		return time.Time{}, time.Time{}, shared.NewBadRequestError(nil, "Range end must be after range start")
	}

	return from, to, nil
}

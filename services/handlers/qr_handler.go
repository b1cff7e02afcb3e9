package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/snaplink-labs/snaplink_api/dto"
	"github.com/snaplink-labs/snaplink_api/model"
	"github.com/snaplink-labs/snaplink_api/shared"
)

type QRHandler struct {
	qrSvc        QRServiceInterface
	rateLimitSvc RateLimitServiceInterface
	baseURL      string
}

func NewQRHandler(qrSvc QRServiceInterface, rateLimitSvc RateLimitServiceInterface, baseURL string) *QRHandler {
	return &QRHandler{
		qrSvc:        qrSvc,
		rateLimitSvc: rateLimitSvc,
		baseURL:      baseURL,
	}
}

// @Summary Create QR Code
// @Description Create a static or dynamic QR code. Anonymous creation is allowed under IP rate limits.
// @Tags qr
// @Accept json
// @Produce json
// @Param Authorization header string false "Bearer Token"
// @Param request body dto.CreateQRRequest true "QR details"
// @Success 201 {object} shared.Response{data=dto.QRResponse}
// @Router /api/v1/qr [post]
func (h *QRHandler) CreateQR(c *fiber.Ctx) error {
	var req dto.CreateQRRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.CreateValidationErrorResponse(err))
	}

	req.Meta = requestMeta(c, h.rateLimitSvc)

	account := accountFromCtx(c)
	if account == nil {
		decision, err := applyAnonymousLimit(c, h.rateLimitSvc, shared.ActionQR)
		if err != nil {
			return err
		}
		if decision.Suspicious {
			req.Meta.Suspicious = true
		}
	}

	if req.Meta.Suspicious {
		c.Set("X-Suspicious-Request", "true")
	}

	qr, err := h.qrSvc.Create(c.UserContext(), account, req)
	if err != nil {
		return err
	}

	if account == nil {
		h.rateLimitSvc.Record(c.UserContext(), h.rateLimitSvc.HashOrigin(getClientIP(c)), shared.ActionQR, qr.Code)
	}

	return shared.ResponseJSON(c, fiber.StatusCreated, "QR code created", h.response(c, qr))
}

// @Summary Get QR Code
// @Description Get details of a QR code
// @Tags qr
// @Produce json
// @Param code path string true "QR code"
// @Success 200 {object} shared.Response{data=dto.QRResponse}
// @Router /api/v1/qr/{code} [get]
func (h *QRHandler) GetQR(c *fiber.Ctx) error {
	qr, err := h.qrSvc.Get(c.UserContext(), c.Params("code"))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", h.response(c, qr))
}

// @Summary List QR Codes
// @Description List QR codes owned by the authenticated account
// @Tags qr
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=dto.QRListResponse}
// @Router /api/v1/qr [get]
func (h *QRHandler) ListQR(c *fiber.Ctx) error {
	account := accountFromCtx(c)

	codes, err := h.qrSvc.ListByOwner(c.UserContext(), account.ID)
	if err != nil {
		return err
	}

	resp := dto.QRListResponse{
		Codes: make([]dto.QRResponse, 0, len(codes)),
		Total: len(codes),
	}
	for i := range codes {
		resp.Codes = append(resp.Codes, h.response(c, &codes[i]))
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", resp)
}

// @Summary Update QR Code
// @Description Update an owned QR code. Changing the kind re-checks the destination counter; free-tier dynamic edits are capped to one per day.
// @Tags qr
// @Accept json
// @Produce json
// @Security Bearer
// @Param code path string true "QR code"
// @Param request body dto.UpdateQRRequest true "Fields to update"
// @Success 200 {object} shared.Response{data=dto.QRResponse}
// @Router /api/v1/qr/{code} [put]
func (h *QRHandler) UpdateQR(c *fiber.Ctx) error {
	account := accountFromCtx(c)

	var req dto.UpdateQRRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.CreateValidationErrorResponse(err))
	}

	qr, err := h.qrSvc.Update(c.UserContext(), c.Params("code"), account, req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "QR code updated", h.response(c, qr))
}

// @Summary Claim QR Code
// @Description Take ownership of an anonymously created QR code. The claim counts against the claiming account's tier.
// @Tags qr
// @Produce json
// @Security Bearer
// @Param code path string true "QR code"
// @Success 200 {object} shared.Response{data=dto.QRResponse}
// @Router /api/v1/qr/{code}/claim [post]
func (h *QRHandler) ClaimQR(c *fiber.Ctx) error {
	account := accountFromCtx(c)

	qr, err := h.qrSvc.Claim(c.UserContext(), c.Params("code"), account)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "QR code claimed", h.response(c, qr))
}

// @Summary Delete QR Code
// @Description Delete an owned QR code and release its usage slot
// @Tags qr
// @Produce json
// @Security Bearer
// @Param code path string true "QR code"
// @Success 200 {object} shared.Response{data=string}
// @Router /api/v1/qr/{code} [delete]
func (h *QRHandler) DeleteQR(c *fiber.Ctx) error {
	account := accountFromCtx(c)

	if err := h.qrSvc.Delete(c.UserContext(), c.Params("code"), account.ID); err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "QR code deleted", "deleted")
}

func (h *QRHandler) response(c *fiber.Ctx, qr *model.QRCode) dto.QRResponse {
	return dto.NewQRResponse(qr, h.baseURL, h.qrSvc.ImageURL(c.UserContext(), qr))
}

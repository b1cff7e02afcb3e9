package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/snaplink-labs/snaplink_api/dto"
	"github.com/snaplink-labs/snaplink_api/shared"
)

type BillingHandler struct {
	billingSvc    BillingServiceInterface
	webhookSecret string
}

func NewBillingHandler(billingSvc BillingServiceInterface, webhookSecret string) *BillingHandler {
	return &BillingHandler{
		billingSvc:    billingSvc,
		webhookSecret: webhookSecret,
	}
}

// @Summary Billing Webhook
// @Description Apply a tier change delivered by the billing provider. Redeliveries of the same event are no-ops.
// @Tags billing
// @Accept json
// @Produce json
// @Param X-Webhook-Secret header string true "Shared webhook secret"
// @Param request body dto.TierChangeRequest true "Tier change event"
// @Success 200 {object} shared.Response{data=string}
// @Router /api/v1/webhooks/billing [post]
func (h *BillingHandler) TierChange(c *fiber.Ctx) error {
	secret := c.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
		return shared.NewUnauthorizedError(nil, "Invalid webhook secret")
	}

	var req dto.TierChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.CreateValidationErrorResponse(err))
	}

	if err := h.billingSvc.ApplyTierChange(c.UserContext(), req); err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Tier change applied", "applied")
}

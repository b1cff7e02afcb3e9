package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/snaplink-labs/snaplink_api/shared"
)

type DispatchHandler struct {
	dispatchSvc  DispatchServiceInterface
	rateLimitSvc RateLimitServiceInterface
}

func NewDispatchHandler(dispatchSvc DispatchServiceInterface, rateLimitSvc RateLimitServiceInterface) *DispatchHandler {
	return &DispatchHandler{
		dispatchSvc:  dispatchSvc,
		rateLimitSvc: rateLimitSvc,
	}
}

// @Summary Resolve Short Code
// @Description Resolve a short code to its destination. Password-protected resources take the credential from the password query parameter.
// @Tags dispatch
// @Produce json
// @Param code path string true "Short code"
// @Param password query string false "Credential for protected resources"
// @Success 302
// @Failure 404 {object} dto.ErrorResponse
// @Failure 410 {object} dto.ErrorResponse
// @Router /{code} [get]
func (h *DispatchHandler) Dispatch(c *fiber.Ctx) error {
	code := c.Params("code")
	if !shared.ValidCode(code) {
		return shared.NewNotFoundError(nil, "Not found")
	}

	meta := requestMeta(c, h.rateLimitSvc)

	target, err := h.dispatchSvc.Resolve(c.UserContext(), code, c.Query("password"), meta)
	if err != nil {
		return err
	}

	// Redirects must never be cached: a disabled or expired code has to
	// stop resolving immediately.
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Redirect(target, fiber.StatusFound)
}

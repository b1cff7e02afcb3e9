package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/snaplink-labs/snaplink_api/dto"
	"github.com/snaplink-labs/snaplink_api/shared"
)

type LinkHandler struct {
	linkSvc      LinkServiceInterface
	rateLimitSvc RateLimitServiceInterface
}

func NewLinkHandler(linkSvc LinkServiceInterface, rateLimitSvc RateLimitServiceInterface) *LinkHandler {
	return &LinkHandler{
		linkSvc:      linkSvc,
		rateLimitSvc: rateLimitSvc,
	}
}

// @Summary Create Short Link
// @Description Create a short link. Anonymous creation is allowed under IP rate limits; authenticated creation counts against the account tier.
// @Tags links
// @Accept json
// @Produce json
// @Param Authorization header string false "Bearer Token"
// @Param request body dto.CreateLinkRequest true "Link details"
// @Success 201 {object} shared.Response{data=dto.LinkResponse}
// @Router /api/v1/links [post]
func (h *LinkHandler) CreateLink(c *fiber.Ctx) error {
	var req dto.CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.CreateValidationErrorResponse(err))
	}

	req.Meta = requestMeta(c, h.rateLimitSvc)

	account := accountFromCtx(c)
	if account == nil {
		decision, err := applyAnonymousLimit(c, h.rateLimitSvc, shared.ActionURL)
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

	link, err := h.linkSvc.Create(c.UserContext(), account, req)
	if err != nil {
		return err
	}

	if account == nil {
		h.rateLimitSvc.Record(c.UserContext(), h.rateLimitSvc.HashOrigin(getClientIP(c)), shared.ActionURL, link.Code)
	}

	return shared.ResponseJSON(c, fiber.StatusCreated, "Link created", dto.NewLinkResponse(link, h.linkSvc.BaseURL()))
}

// @Summary Get Link
// @Description Get details of a short link
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} shared.Response{data=dto.LinkResponse}
// @Router /api/v1/links/{code} [get]
func (h *LinkHandler) GetLink(c *fiber.Ctx) error {
	link, err := h.linkSvc.Get(c.UserContext(), c.Params("code"))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", dto.NewLinkResponse(link, h.linkSvc.BaseURL()))
}

// @Summary List Links
// @Description List short links owned by the authenticated account
// @Tags links
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=dto.LinkListResponse}
// @Router /api/v1/links [get]
func (h *LinkHandler) ListLinks(c *fiber.Ctx) error {
	account := accountFromCtx(c)

	links, err := h.linkSvc.ListByOwner(c.UserContext(), account.ID)
	if err != nil {
		return err
	}

	resp := dto.LinkListResponse{
		Links: make([]dto.LinkResponse, 0, len(links)),
		Total: len(links),
	}
	for i := range links {
		resp.Links = append(resp.Links, dto.NewLinkResponse(&links[i], h.linkSvc.BaseURL()))
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", resp)
}

// @Summary Update Link
// @Description Update an owned short link. Omitted fields are left unchanged.
// @Tags links
// @Accept json
// @Produce json
// @Security Bearer
// @Param code path string true "Short code"
// @Param request body dto.UpdateLinkRequest true "Fields to update"
// @Success 200 {object} shared.Response{data=dto.LinkResponse}
// @Router /api/v1/links/{code} [put]
func (h *LinkHandler) UpdateLink(c *fiber.Ctx) error {
	account := accountFromCtx(c)

	var req dto.UpdateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.CreateValidationErrorResponse(err))
	}

	link, err := h.linkSvc.Update(c.UserContext(), c.Params("code"), account.ID, req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Link updated", dto.NewLinkResponse(link, h.linkSvc.BaseURL()))
}

// @Summary Delete Link
// @Description Delete an owned short link and release its usage slot
// @Tags links
// @Produce json
// @Security Bearer
// @Param code path string true "Short code"
// @Success 200 {object} shared.Response{data=string}
// @Router /api/v1/links/{code} [delete]
func (h *LinkHandler) DeleteLink(c *fiber.Ctx) error {
	account := accountFromCtx(c)

	if err := h.linkSvc.Delete(c.UserContext(), c.Params("code"), account.ID); err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Link deleted", "deleted")
}

// applyAnonymousLimit runs the sliding-window check for an unauthenticated
// request and converts a denial into a 429 with retry guidance. The decision
// is returned so the caller can act on the advisory suspicious flag.
func applyAnonymousLimit(c *fiber.Ctx, rateLimitSvc RateLimitServiceInterface, actionKind string) (*dto.RateLimitDecision, error) {
	ip := getClientIP(c)
	originHash := rateLimitSvc.HashOrigin(ip)

	decision, err := rateLimitSvc.Check(c.UserContext(), originHash, actionKind, ip, c.Get(fiber.HeaderUserAgent))
	if err != nil {
		if decision != nil && decision.RetryAfter != nil {
			retryAfter := int64(time.Until(*decision.RetryAfter).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
		}
		return decision, err
	}

	if decision.Warning != "" {
		c.Set("X-RateLimit-Warning", decision.Warning)
	}

	return decision, nil
}

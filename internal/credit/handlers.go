package credit

import (
	"kolo-backend/internal/middleware"
	"kolo-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *Service
}

// Me GET /api/v1/credit/me — the caller's credit profile. Identities with no
// repayment history get the base profile.
func (h *Handlers) Me(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	profile, err := h.Service.Profile(c.Context(), actor.IdentityID)
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Credit profile", profile, nil)
}

// Lookup GET /api/v1/credit/:identity_id — admin-only.
func (h *Handlers) Lookup(c *fiber.Ctx) error {
	identityID := c.Params("identity_id")
	if identityID == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	profile, err := h.Service.Profile(c.Context(), identityID)
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Credit profile", profile, nil)
}

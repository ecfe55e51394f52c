package health

import (
	"kolo-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *Service
}

// JSON GET /health/json — health snapshot.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	return response.Success(c, "Health", h.Service.Collect(c.Context()), nil)
}

// Reset GET /health/reset — clears request counters.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	if err := h.Service.Reset(c.Context()); err != nil {
		return response.Error(c, "Failed to reset health counters", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Health counters reset", nil, nil)
}

package chain

import (
	"errors"

	"kolo-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Handlers struct {
	Sync *SyncService
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrChainUnavailable):
		return fiber.StatusBadGateway
	case errors.Is(err, ErrTxFailed):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// SyncCircle POST /api/v1/circles/:id/sync — admin-only reconciliation.
func (h *Handlers) SyncCircle(c *fiber.Ctx) error {
	circleID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format", fiber.StatusBadRequest, nil)
	}
	result, err := h.Sync.SyncCircle(c.Context(), circleID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Circle synced", result, nil)
}

// State GET /api/v1/chain/circles/:id — raw committed ledger view.
func (h *Handlers) State(c *fiber.Ctx) error {
	ref := c.Params("id")
	if ref == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	state, err := h.Sync.Client.CircleState(c.Context(), ref)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Chain circle state", state, nil)
}

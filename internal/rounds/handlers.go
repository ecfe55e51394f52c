package rounds

import (
	"kolo-backend/internal/middleware"
	"kolo-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

func statusFor(err error) int {
	switch err {
	case ErrCircleNotFound:
		return fiber.StatusNotFound
	case ErrNotMember, ErrNotWinner:
		return fiber.StatusForbidden
	case ErrInvalidAmount, ErrInvalidBid, ErrInvalidRound:
		return fiber.StatusBadRequest
	case ErrCircleNotActive, ErrPayoutModeMismatch, ErrAlreadyContributed,
		ErrAlreadyWon, ErrBidExists, ErrRoundAlreadySettled:
		return fiber.StatusConflict
	case ErrContributionsIncomplete, ErrContributionRequired:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func parseCircleID(c *fiber.Ctx) (uuid.UUID, error) {
	circleID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, response.Error(c, "Invalid UUID format", fiber.StatusBadRequest, nil)
	}
	return circleID, nil
}

// Contribute POST /api/v1/circles/:id/contributions
func (h *Handlers) Contribute(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	circleID, err := parseCircleID(c)
	if err != nil {
		return err
	}
	var body struct {
		Amount float64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	contribution, err := h.Service.Contribute(c.Context(), circleID, actor.IdentityID, body.Amount)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.SuccessCreated(c, "Contribution recorded", contribution, nil)
}

// PlaceBid POST /api/v1/circles/:id/bids
func (h *Handlers) PlaceBid(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	circleID, err := parseCircleID(c)
	if err != nil {
		return err
	}
	var body struct {
		AmountMicro int64 `json:"amount_micro"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	bid, err := h.Service.PlaceBid(c.Context(), circleID, actor.IdentityID, body.AmountMicro)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.SuccessCreated(c, "Bid placed", bid, nil)
}

// ProcessPayout POST /api/v1/circles/:id/payout — admin-only; settles the
// current round of a fixed-order circle.
func (h *Handlers) ProcessPayout(c *fiber.Ctx) error {
	circleID, err := parseCircleID(c)
	if err != nil {
		return err
	}
	result, err := h.Service.ProcessPayout(c.Context(), circleID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Round paid out", result, nil)
}

// Settle POST /api/v1/circles/:id/settle — admin-only; records an
// auction-round outcome computed off-process.
func (h *Handlers) Settle(c *fiber.Ctx) error {
	circleID, err := parseCircleID(c)
	if err != nil {
		return err
	}
	var body struct {
		Round             int     `json:"round"`
		WinnerIdentity    string  `json:"winner_identity"`
		WinningBidMicro   int64   `json:"winning_bid_micro"`
		PoolTotal         float64 `json:"pool_total"`
		ProtocolFee       float64 `json:"protocol_fee"`
		Surplus           float64 `json:"surplus"`
		DividendPerMember float64 `json:"dividend_per_member"`
	}
	if err := c.BodyParser(&body); err != nil || body.WinnerIdentity == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	result, err := h.Service.Settle(c.Context(), circleID, SettleParams{
		Round:             body.Round,
		WinnerIdentity:    body.WinnerIdentity,
		WinningBidMicro:   body.WinningBidMicro,
		PoolTotal:         body.PoolTotal,
		ProtocolFee:       body.ProtocolFee,
		Surplus:           body.Surplus,
		DividendPerMember: body.DividendPerMember,
	})
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Round settled", result, nil)
}

// Repay POST /api/v1/circles/:id/repayments
func (h *Handlers) Repay(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	circleID, err := parseCircleID(c)
	if err != nil {
		return err
	}
	var body struct {
		RepaymentRound int     `json:"repayment_round"`
		AmountDue      float64 `json:"amount_due"`
		AmountPaid     float64 `json:"amount_paid"`
		OnTime         bool    `json:"on_time"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	repayment, err := h.Service.Repay(c.Context(), circleID, actor.IdentityID, body.RepaymentRound, body.AmountDue, body.AmountPaid, body.OnTime)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Repayment recorded", repayment, nil)
}

// Status GET /api/v1/circles/:id/rounds/status
func (h *Handlers) Status(c *fiber.Ctx) error {
	circleID, err := parseCircleID(c)
	if err != nil {
		return err
	}
	status, err := h.Service.Status(c.Context(), circleID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Round status", status, nil)
}

// Results GET /api/v1/circles/:id/rounds/results
func (h *Handlers) Results(c *fiber.Ctx) error {
	circleID, err := parseCircleID(c)
	if err != nil {
		return err
	}
	results, err := h.Service.Results(c.Context(), circleID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Round results", results, nil)
}

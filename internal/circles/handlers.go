package circles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kolo-backend/internal/chain"
	"kolo-backend/internal/collateral"
	"kolo-backend/internal/domain"
	"kolo-backend/internal/middleware"
	"kolo-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service *Service
	Chain   chain.Client
	Nonces  chain.Sequencer
}

func statusFor(err error) int {
	switch {
	case err == ErrInvalidParams:
		return fiber.StatusBadRequest
	case err == ErrCircleNotFound:
		return fiber.StatusNotFound
	case err == ErrAlreadyMember:
		return fiber.StatusConflict
	case err == ErrCircleNotAccepting, err == ErrCircleFull, err == ErrInvalidTransition:
		return fiber.StatusConflict
	case err == collateral.ErrNoDeposit, err == collateral.ErrPriceNotSet:
		return fiber.StatusNotFound
	case err == collateral.ErrInsufficientCapacity:
		return fiber.StatusUnprocessableEntity
	case err == collateral.ErrCommitmentExists:
		return fiber.StatusConflict
	case errors.Is(err, chain.ErrChainUnavailable):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, chain.ErrTxFailed):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

type createBody struct {
	Name               string  `json:"name"`
	PayoutMode         string  `json:"payout_mode"`
	ContributionAmount float64 `json:"contribution_amount"`
	TotalMembers       int     `json:"total_members"`
	RoundDurationSecs  int64   `json:"round_duration_secs"`
	GracePeriodSecs    int64   `json:"grace_period_secs"`
	BidWindowSecs      *int64  `json:"bid_window_secs"`
	Asset              string  `json:"asset"`
}

// Create POST /api/v1/circles
func (h *Handlers) Create(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil || actor.Wallet == "" {
		return response.Error(c, "A bound wallet is required", fiber.StatusForbidden, nil)
	}
	var body createBody
	if err := c.BodyParser(&body); err != nil || body.Name == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	params := CreateParams{
		CreatorID:          actor.IdentityID,
		CreatorWallet:      actor.Wallet,
		Name:               body.Name,
		PayoutMode:         body.PayoutMode,
		ContributionAmount: body.ContributionAmount,
		TotalMembers:       body.TotalMembers,
		RoundDuration:      time.Duration(body.RoundDurationSecs) * time.Second,
		GracePeriod:        time.Duration(body.GracePeriodSecs) * time.Second,
		Asset:              body.Asset,
	}
	if body.BidWindowSecs != nil {
		window := time.Duration(*body.BidWindowSecs) * time.Second
		params.BidWindow = &window
	}

	circle, err := h.Service.Create(c.Context(), params)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}

	metadata := map[string]interface{}{}
	if h.Chain != nil {
		txID, err := h.submitCreate(c, circle.CircleID, actor.Wallet)
		if err != nil {
			log.Error().Err(err).Str("circle_id", circle.CircleID.String()).Msg("Circle broadcast submit failed")
			metadata["broadcast"] = "failed"
		} else {
			metadata["tx_id"] = txID
		}
	}
	return response.SuccessCreated(c, "Circle created", circle, metadata)
}

func (h *Handlers) submitCreate(c *fiber.Ctx, circleID uuid.UUID, sender string) (string, error) {
	nonce, err := h.Nonces.Next(c.Context())
	if err != nil {
		return "", err
	}
	return h.Chain.Submit(c.Context(), chain.Operation{
		Kind:     "create_circle",
		CircleID: circleID.String(),
		Sender:   sender,
		Nonce:    nonce,
	})
}

// ConfirmBroadcast POST /api/v1/circles/:id/broadcast — waits out a pending
// creation transaction and moves the circle into forming.
func (h *Handlers) ConfirmBroadcast(c *fiber.Ctx) error {
	circleID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format", fiber.StatusBadRequest, nil)
	}
	var body struct {
		TxID         string `json:"tx_id"`
		ChainAddress string `json:"chain_address"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	chainAddress := body.ChainAddress
	if h.Chain != nil && body.TxID != "" {
		ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
		defer cancel()
		status, err := chain.WaitForTx(ctx, h.Chain, body.TxID, 2*time.Second)
		if err != nil {
			return response.Error(c, err.Error(), statusFor(err), nil)
		}
		if status != chain.TxStatusSuccess {
			return response.Error(c, "Ledger transaction failed", fiber.StatusUnprocessableEntity, nil)
		}
		if chainAddress == "" {
			chainAddress = fmt.Sprintf("circle:%s", circleID)
		}
	}
	if chainAddress == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	circle, err := h.Service.MarkBroadcast(c.Context(), circleID, chainAddress)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Circle broadcast confirmed", circle, nil)
}

// Join POST /api/v1/circles/:id/join
func (h *Handlers) Join(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil || actor.Wallet == "" {
		return response.Error(c, "A bound wallet is required", fiber.StatusForbidden, nil)
	}
	circleID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format", fiber.StatusBadRequest, nil)
	}

	circle, err := h.Service.Join(c.Context(), circleID, actor.IdentityID, actor.Wallet)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Joined circle", circle, nil)
}

// Get GET /api/v1/circles/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	circleID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format", fiber.StatusBadRequest, nil)
	}
	circle, err := h.Service.Get(c.Context(), circleID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Circle", circle, nil)
}

// Members GET /api/v1/circles/:id/members
func (h *Handlers) Members(c *fiber.Ctx) error {
	circleID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format", fiber.StatusBadRequest, nil)
	}
	members, err := h.Service.Members(c.Context(), circleID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Circle members", members, nil)
}

// Mine GET /api/v1/circles/mine
func (h *Handlers) Mine(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	list, err := h.Service.ListByIdentity(c.Context(), actor.IdentityID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Circles", list, nil)
}

// Pause POST /api/v1/circles/:id/pause — admin-only.
func (h *Handlers) Pause(c *fiber.Ctx) error {
	return h.lifecycle(c, h.Service.Pause, "Circle paused")
}

// Resume POST /api/v1/circles/:id/resume — admin-only.
func (h *Handlers) Resume(c *fiber.Ctx) error {
	return h.lifecycle(c, h.Service.Resume, "Circle resumed")
}

// Dissolve POST /api/v1/circles/:id/dissolve — admin-only, terminal.
func (h *Handlers) Dissolve(c *fiber.Ctx) error {
	return h.lifecycle(c, h.Service.Dissolve, "Circle dissolved")
}

func (h *Handlers) lifecycle(c *fiber.Ctx, apply func(context.Context, uuid.UUID) (*domain.Circle, error), message string) error {
	circleID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format", fiber.StatusBadRequest, nil)
	}
	circle, err := apply(c.Context(), circleID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, message, circle, nil)
}

package collateral

import (
	"kolo-backend/internal/middleware"
	"kolo-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *Service
}

func statusFor(err error) int {
	switch err {
	case ErrInvalidAmount, ErrInvalidLTV:
		return fiber.StatusBadRequest
	case ErrNoDeposit, ErrCommitmentNotFound, ErrPriceNotSet:
		return fiber.StatusNotFound
	case ErrInsufficientBalance, ErrInsufficientCapacity:
		return fiber.StatusUnprocessableEntity
	case ErrCommitmentExists:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func requireWallet(c *fiber.Ctx) (string, error) {
	actor := middleware.GetActor(c)
	if actor == nil || actor.Wallet == "" {
		return "", response.Error(c, "A bound wallet is required", fiber.StatusForbidden, nil)
	}
	return actor.Wallet, nil
}

// Deposit POST /api/v1/collateral/deposit
func (h *Handlers) Deposit(c *fiber.Ctx) error {
	wallet, err := requireWallet(c)
	if err != nil {
		return err
	}
	var body struct {
		Asset  string  `json:"asset"`
		Amount float64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil || body.Asset == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	account, err := h.Service.Deposit(c.Context(), wallet, body.Asset, body.Amount)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Collateral deposited", account, nil)
}

// Withdraw POST /api/v1/collateral/withdraw
func (h *Handlers) Withdraw(c *fiber.Ctx) error {
	wallet, err := requireWallet(c)
	if err != nil {
		return err
	}
	var body struct {
		Asset  string  `json:"asset"`
		Amount float64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil || body.Asset == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	account, err := h.Service.Withdraw(c.Context(), wallet, body.Asset, body.Amount)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Collateral withdrawn", account, nil)
}

// Capacity GET /api/v1/collateral/capacity
func (h *Handlers) Capacity(c *fiber.Ctx) error {
	wallet, err := requireWallet(c)
	if err != nil {
		return err
	}
	capacity, err := h.Service.AvailableCapacity(c.Context(), wallet)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Available capacity", map[string]interface{}{
		"wallet":             wallet,
		"available_capacity": capacity,
		"ltv_ratio":          h.Service.LTVRatio(),
	}, nil)
}

// Release POST /api/v1/collateral/release — admin escape hatch for stuck
// commitments; normal release happens on circle completion.
func (h *Handlers) Release(c *fiber.Ctx) error {
	var body struct {
		Wallet   string `json:"wallet"`
		CircleID string `json:"circle_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.Wallet == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	circleID, err := uuid.Parse(body.CircleID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for circle_id", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.Release(c.Context(), body.Wallet, circleID); err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Commitment released", nil, nil)
}

// Slash POST /api/v1/collateral/slash — admin-only penalty.
func (h *Handlers) Slash(c *fiber.Ctx) error {
	var body struct {
		Wallet   string  `json:"wallet"`
		CircleID string  `json:"circle_id"`
		Amount   float64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil || body.Wallet == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	circleID, err := uuid.Parse(body.CircleID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for circle_id", fiber.StatusBadRequest, nil)
	}
	slashed, err := h.Service.Slash(c.Context(), body.Wallet, circleID, body.Amount)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Collateral slashed", map[string]interface{}{
		"slashed": slashed,
	}, nil)
}

// SetLTV POST /api/v1/collateral/ltv — admin-only.
func (h *Handlers) SetLTV(c *fiber.Ctx) error {
	var body struct {
		Ratio float64 `json:"ratio"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.SetLTVRatio(body.Ratio); err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "LTV ratio updated", map[string]interface{}{
		"ltv_ratio": body.Ratio,
	}, nil)
}

// SetPrice POST /api/v1/collateral/prices — admin-only oracle upsert.
func (h *Handlers) SetPrice(c *fiber.Ctx) error {
	oracle, ok := h.Service.Oracle.(*GormPriceOracle)
	if !ok {
		return response.Error(c, "Price oracle is not writable", fiber.StatusNotImplemented, nil)
	}
	var body struct {
		Asset    string `json:"asset"`
		PriceUSD string `json:"price_usd"`
		Decimals int32  `json:"decimals"`
	}
	if err := c.BodyParser(&body); err != nil || body.Asset == "" || body.PriceUSD == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	price, err := decimal.NewFromString(body.PriceUSD)
	if err != nil {
		return response.Error(c, "Invalid price format", fiber.StatusBadRequest, nil)
	}
	if err := oracle.SetPrice(c.Context(), body.Asset, price, body.Decimals); err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Price updated", nil, nil)
}

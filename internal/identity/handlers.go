package identity

import (
	"crypto/subtle"

	"kolo-backend/internal/domain"
	"kolo-backend/internal/middleware"
	"kolo-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service     *Service
	Redis       *redis.Client
	Session     middleware.SessionConfig
	DevPassword string
}

func statusFor(err error) int {
	switch err {
	case ErrIdentityNotFound:
		return fiber.StatusNotFound
	case ErrInvalidWallet:
		return fiber.StatusBadRequest
	case ErrWalletAlreadyBound, ErrWalletTaken:
		return fiber.StatusConflict
	case ErrNoWalletToConfirm:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// DevSignIn POST /api/v1/auth/dev — password-gated local sign-in used in
// development and integration tests. Disabled unless a dev password is set.
func (h *Handlers) DevSignIn(c *fiber.Ctx) error {
	if h.DevPassword == "" {
		return response.Error(c, "Dev sign-in is disabled", fiber.StatusNotFound, nil)
	}
	var body struct {
		Password   string `json:"password"`
		IdentityID string `json:"identity_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	if subtle.ConstantTimeCompare([]byte(body.Password), []byte(h.DevPassword)) != 1 {
		return response.Unauthorized(c, "Invalid credentials")
	}

	identityID := body.IdentityID
	if identityID == "" {
		identityID = domain.NewIdentityHandle()
	}
	ident, err := h.Service.Ensure(c.Context(), identityID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}

	sid := middleware.RegenerateSessionID(c)
	middleware.SetSessionIdentity(c, middleware.SessionIdentity{
		IdentityID: ident.IdentityID,
		Wallet:     ident.Wallet,
	})
	cookie := middleware.SessionCookieConfig(h.Session)
	cookie.Value = sid
	c.Cookie(&cookie)

	log.Info().Str("identity_id", ident.IdentityID).Msg("Dev sign-in")
	return response.Success(c, "Signed in", ident, nil)
}

// Logout POST /api/v1/auth/logout
func (h *Handlers) Logout(c *fiber.Ctx) error {
	if sid := middleware.GetSessionID(c); sid != "" && h.Redis != nil {
		if err := h.Redis.Del(c.Context(), middleware.SessionRedisPrefix+sid).Err(); err != nil {
			log.Warn().Err(err).Msg("Session delete failed")
		}
	}
	middleware.DestroySession(c)
	cookie := middleware.SessionCookieConfig(h.Session)
	cookie.MaxAge = -1
	c.Cookie(&cookie)
	return response.Success(c, "Signed out", nil, nil)
}

// Me GET /api/v1/identity/me
func (h *Handlers) Me(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	ident, err := h.Service.Get(c.Context(), actor.IdentityID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Identity", ident, nil)
}

// BindWallet POST /api/v1/identity/wallet — replaceable until confirmed.
func (h *Handlers) BindWallet(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var body struct {
		Wallet string `json:"wallet"`
	}
	if err := c.BodyParser(&body); err != nil || body.Wallet == "" {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	ident, err := h.Service.BindWallet(c.Context(), actor.IdentityID, body.Wallet)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	middleware.SetSessionIdentity(c, middleware.SessionIdentity{
		IdentityID: ident.IdentityID,
		Wallet:     ident.Wallet,
	})
	return response.Success(c, "Wallet bound", ident, nil)
}

// ConfirmWallet POST /api/v1/identity/wallet/confirm — permanent.
func (h *Handlers) ConfirmWallet(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	ident, err := h.Service.ConfirmWallet(c.Context(), actor.IdentityID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	middleware.SetSessionIdentity(c, middleware.SessionIdentity{
		IdentityID: ident.IdentityID,
		Wallet:     ident.Wallet,
	})
	return response.Success(c, "Wallet confirmed", ident, nil)
}

package middleware

import (
	"kolo-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const identityLocal = "identity"

// RequireIdentity ensures a session identity is present. 401 otherwise.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident := c.Locals(identityLocal)
		if ident == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}

// Actor is the resolved caller of a request.
type Actor struct {
	IdentityID string
	Wallet     string
}

// GetActor extracts the session identity pair from Locals. Returns nil when
// no identity is present or the stored shape is unusable.
func GetActor(c *fiber.Ctx) *Actor {
	raw, ok := c.Locals(identityLocal).(map[string]interface{})
	if !ok {
		return nil
	}
	id, _ := raw["identity_id"].(string)
	if id == "" {
		return nil
	}
	actor := &Actor{IdentityID: id}
	if w, ok := raw["wallet"].(string); ok {
		actor.Wallet = w
	}
	return actor
}

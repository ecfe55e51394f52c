package middleware

import (
	"kolo-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const adminKeyHeader = "x-admin-key"

// RequireAdminKey gates admin-only routes (pause/resume, LTV tuning, prices)
// behind a bcrypt-checked key. An empty configured hash disables the routes.
func RequireAdminKey(keyHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if keyHash == "" {
			return response.Error(c, "Admin endpoints disabled", fiber.StatusForbidden, nil)
		}
		key := c.Get(adminKeyHeader)
		if key == "" {
			return response.Unauthorized(c, "Admin key required")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			return response.Error(c, "Invalid admin key", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}

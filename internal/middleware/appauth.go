package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/relay-guard/relayguard/internal/auth"
)

const appNameLocal = "app_name"

// AppAuth validates application bearer tokens issued by the auth service and
// stashes the application name in the request context. A no-op when no
// application credentials are configured.
func AppAuth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if svc == nil || !svc.Enabled() {
			return c.Next()
		}
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		appName, err := svc.VerifyToken(token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(appNameLocal, appName)
		return c.Next()
	}
}

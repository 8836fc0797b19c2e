package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/certeval-api/internal/utils"
)

// Auth roles understood by the guards in this package.
const (
	AuthRoleAdmin  = "admin"
	AuthRoleWorker = "worker"
)

// RequireSelfOrRole lets a caller read resources scoped by the user id in route
// parameter param only when it is their own id, unless they hold one of roles.
func RequireSelfOrRole(param string, roles ...string) fiber.Handler {
	privileged := roleSet(roles)

	return func(c *fiber.Ctx) error {
		callerID, ok := c.Locals("user_id").(uint)
		if !ok || callerID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}

		if _, ok := privileged[normalizeRoleValue(c.Locals("user_role"))]; ok {
			return c.Next()
		}

		target, err := strconv.ParseUint(strings.TrimSpace(c.Params(param)), 10, 64)
		if err != nil {
			// Malformed ids are reported by the handler.
			return c.Next()
		}
		if uint(target) != callerID {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

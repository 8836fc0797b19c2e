package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/certeval-api/internal/middleware"
)

func selfOrAdminApp(userID interface{}, role string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != nil {
			c.Locals("user_id", userID)
		}
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	})
	app.Get("/users/:userId", middleware.RequireSelfOrRole("userId", middleware.AuthRoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestRequireSelfOrRoleAllowsOwner(t *testing.T) {
	resp := perform(t, selfOrAdminApp(uint(10), middleware.AuthRoleWorker), "/users/10")
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestRequireSelfOrRoleDeniesOtherWorkers(t *testing.T) {
	resp := perform(t, selfOrAdminApp(uint(10), middleware.AuthRoleWorker), "/users/11")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireSelfOrRoleAllowsAdmins(t *testing.T) {
	resp := perform(t, selfOrAdminApp(uint(1), "Admin"), "/users/11")
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestRequireSelfOrRoleRequiresUser(t *testing.T) {
	resp := perform(t, selfOrAdminApp(nil, middleware.AuthRoleAdmin), "/users/11")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func perform(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

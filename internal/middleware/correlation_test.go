package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/certeval-api/internal/middleware"
)

func TestCorrelationIDPropagatesOrReplaces(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		require.Equal(t, middleware.GetCorrelationID(c), middleware.CorrelationIDFromContext(c.UserContext()))
		return c.SendStatus(fiber.StatusOK)
	})

	cases := map[string]struct {
		header string
		keep   bool
	}{
		"kept":      {header: "grading-run-42", keep: true},
		"generated": {header: "", keep: false},
		"oversized": {header: strings.Repeat("a", 200), keep: false},
		"spaces":    {header: "two words", keep: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("X-Correlation-ID", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			got := resp.Header.Get("X-Correlation-ID")
			require.NotEmpty(t, got)
			if tc.keep {
				require.Equal(t, tc.header, got)
			} else {
				require.NotEqual(t, tc.header, got)
				require.Len(t, got, 36)
			}
		})
	}
}

func TestRateLimitRejectsAfterMax(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(3))
		return c.Next()
	})
	app.Post("/", middleware.RateLimit("submit", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

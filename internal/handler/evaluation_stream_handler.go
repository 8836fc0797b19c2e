package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certeval-api/internal/middleware"
	"github.com/noah-isme/certeval-api/internal/service"
)

const defaultStreamKeepalive = 30 * time.Second

// EvaluationStreamHandler pushes recorded evaluations to dashboards over a websocket.
// Admins receive every event; workers only their own.
type EvaluationStreamHandler struct {
	feed      *service.EvaluationFeed
	logger    zerolog.Logger
	keepalive time.Duration
}

// NewEvaluationStreamHandler constructs the stream handler.
func NewEvaluationStreamHandler(feed *service.EvaluationFeed, logger zerolog.Logger, keepalive time.Duration) *EvaluationStreamHandler {
	if keepalive <= 0 {
		keepalive = defaultStreamKeepalive
	}
	return &EvaluationStreamHandler{
		feed:      feed,
		logger:    logger.With().Str("component", "evaluation_stream_handler").Logger(),
		keepalive: keepalive,
	}
}

// Register binds the websocket route under the evaluations group.
func (h *EvaluationStreamHandler) Register(router fiber.Router) {
	router.Use("/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/stream", websocket.New(h.serve))
}

func (h *EvaluationStreamHandler) serve(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(uint)
	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
		return
	}

	filter := userID
	if role, _ := conn.Locals("user_role").(string); strings.EqualFold(strings.TrimSpace(role), middleware.AuthRoleAdmin) {
		filter = 0
	}

	logger := h.logger.With().Uint("user_id", userID).Logger()
	if correlation, ok := conn.Locals("correlation_id").(string); ok && correlation != "" {
		logger = logger.With().Str("correlation_id", correlation).Logger()
	}

	events, cancel := h.feed.Subscribe(filter)
	defer cancel()

	// Clients never send data; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Debug().Msg("evaluation stream connected")
	defer logger.Debug().Msg("evaluation stream disconnected")

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("evaluation stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

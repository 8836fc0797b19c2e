package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certeval-api/internal/dto"
	"github.com/noah-isme/certeval-api/internal/middleware"
	"github.com/noah-isme/certeval-api/internal/service"
	"github.com/noah-isme/certeval-api/internal/utils"
)

// EvaluationHandler exposes grading and evaluation result endpoints.
type EvaluationHandler struct {
	service     service.EvaluationService
	logger      zerolog.Logger
	submitLimit int
	submitEvery time.Duration
}

// NewEvaluationHandler constructs the evaluation handler. submitLimit caps grading
// writes per grader per window; zero keeps the middleware default.
func NewEvaluationHandler(service service.EvaluationService, submitLimit int, window time.Duration, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service:     service,
		logger:      logger.With().Str("component", "evaluation_handler").Logger(),
		submitLimit: submitLimit,
		submitEvery: window,
	}
}

// Register wires evaluation routes.
func (h *EvaluationHandler) Register(router fiber.Router) {
	grading := middleware.RequireRole(middleware.AuthRoleAdmin)
	limit := middleware.RateLimit("evaluation_submit", h.submitLimit, h.submitEvery)
	self := middleware.RequireSelfOrRole("userId", middleware.AuthRoleAdmin)

	router.Post("/", grading, limit, h.submit)
	router.Patch("/:id", grading, limit, h.regrade)
	router.Get("/users/:userId/latest", self, h.latest)
	router.Get("/users/:userId/templates/:templateId/revisions", self, h.revisions)
	router.Get("/users/:userId/templates/:templateId", self, h.byTemplate)
	router.Get("/users/:userId", self, h.history)
}

func (h *EvaluationHandler) submit(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.SubmitEvaluationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if grader := userIDFromContext(c); grader > 0 {
		payload.GradedBy = &grader
	}

	result, err := h.service.Submit(withRequestContext(c), payload)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to record evaluation")
	}

	if result.Created {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "evaluation recorded", result)
	}
	return utils.SendSuccess(c, "evaluation updated", result)
}

func (h *EvaluationHandler) regrade(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	evaluationID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid evaluation id")
	}

	var payload dto.RegradeEvaluationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}
	if grader := userIDFromContext(c); grader > 0 {
		payload.GradedBy = &grader
	}

	result, err := h.service.Regrade(withRequestContext(c), evaluationID, payload)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to regrade evaluation")
	}

	return utils.SendSuccess(c, "evaluation updated", result)
}

func (h *EvaluationHandler) latest(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	userID, err := parseUintParam(c, "userId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid user id")
	}

	result, err := h.service.Latest(withRequestContext(c), userID)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to load latest evaluations")
	}

	return utils.SendSuccess(c, "latest evaluations", result)
}

func (h *EvaluationHandler) history(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	userID, err := parseUintParam(c, "userId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid user id")
	}

	result, err := h.service.History(withRequestContext(c), userID)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to load evaluation history")
	}

	return utils.SendSuccess(c, "evaluation history", result)
}

func (h *EvaluationHandler) byTemplate(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	userID, templateID, err := userTemplateParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.ByTemplate(withRequestContext(c), userID, templateID)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to load evaluation")
	}
	if result == nil {
		return utils.SendSuccess(c, "no evaluation recorded", nil)
	}

	return utils.SendSuccess(c, "evaluation", result)
}

func (h *EvaluationHandler) revisions(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	userID, templateID, err := userTemplateParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Revisions(withRequestContext(c), userID, templateID)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to load evaluation revisions")
	}

	return utils.SendSuccess(c, "evaluation revisions", result)
}

func userTemplateParams(c *fiber.Ctx) (uint, uint, error) {
	userID, err := parseUintParam(c, "userId")
	if err != nil {
		return 0, 0, err
	}
	templateID, err := parseUintParam(c, "templateId")
	if err != nil {
		return 0, 0, err
	}
	return userID, templateID, nil
}

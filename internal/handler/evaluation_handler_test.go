package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/certeval-api/internal/dto"
	"github.com/noah-isme/certeval-api/internal/handler"
	"github.com/noah-isme/certeval-api/internal/models"
	"github.com/noah-isme/certeval-api/internal/service"
)

type mockEvaluationService struct {
	submitResult dto.SubmitEvaluationResponse
	submitErr    error
	lastSubmit   dto.SubmitEvaluationRequest
	regradeID    uint
	lastRegrade  dto.RegradeEvaluationRequest
	latest       dto.LatestEvaluationsResponse
	history      []dto.EvaluationResponse
	byTemplate   *dto.EvaluationResponse
	readErr      error
	calls        int
}

func (m *mockEvaluationService) Submit(_ context.Context, req dto.SubmitEvaluationRequest) (dto.SubmitEvaluationResponse, error) {
	m.calls++
	m.lastSubmit = req
	return m.submitResult, m.submitErr
}

func (m *mockEvaluationService) Regrade(_ context.Context, id uint, req dto.RegradeEvaluationRequest) (dto.SubmitEvaluationResponse, error) {
	m.calls++
	m.regradeID = id
	m.lastRegrade = req
	return m.submitResult, m.submitErr
}

func (m *mockEvaluationService) Latest(context.Context, uint) (dto.LatestEvaluationsResponse, error) {
	m.calls++
	return m.latest, m.readErr
}

func (m *mockEvaluationService) History(context.Context, uint) ([]dto.EvaluationResponse, error) {
	m.calls++
	return m.history, m.readErr
}

func (m *mockEvaluationService) ByTemplate(context.Context, uint, uint) (*dto.EvaluationResponse, error) {
	m.calls++
	return m.byTemplate, m.readErr
}

func (m *mockEvaluationService) Revisions(context.Context, uint, uint) ([]dto.EvaluationRevisionResponse, error) {
	m.calls++
	return []dto.EvaluationRevisionResponse{}, m.readErr
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details []struct {
		Field string `json:"field"`
		Rule  string `json:"rule"`
	} `json:"details"`
}

// authAs stands in for the JWT middleware.
func authAs(userID uint, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID > 0 {
			c.Locals("user_id", userID)
		}
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	}
}

func newEvaluationApp(svc service.EvaluationService, userID uint, role string) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/evaluations", authAs(userID, role))
	handler.NewEvaluationHandler(svc, 100, time.Minute, zerolog.New(io.Discard)).Register(group)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func TestEvaluationHandlerSubmitStatusReflectsCreation(t *testing.T) {
	cases := []struct {
		name    string
		created bool
		status  int
	}{
		{name: "created", created: true, status: fiber.StatusCreated},
		{name: "regraded", created: false, status: fiber.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockEvaluationService{submitResult: dto.SubmitEvaluationResponse{
				Evaluation: dto.EvaluationResponse{ID: 9, Percentage: 80, ResultStatus: models.ResultPass},
				Created:    tc.created,
				Revision:   1,
			}}
			app := newEvaluationApp(svc, 42, "admin")

			resp := doJSON(t, app, http.MethodPost, "/api/v1/evaluations", map[string]interface{}{
				"user_id":     1,
				"template_id": 2,
				"deductions":  map[string]float64{"5": 1.5},
			})
			require.Equal(t, tc.status, resp.StatusCode)

			var body envelope
			decodeResponse(t, resp, &body)
			require.True(t, body.Success)

			require.Equal(t, uint(1), svc.lastSubmit.UserID)
			require.Equal(t, uint(2), svc.lastSubmit.TemplateID)
			require.Equal(t, 1.5, svc.lastSubmit.Deductions[5])
			require.NotNil(t, svc.lastSubmit.GradedBy)
			require.Equal(t, uint(42), *svc.lastSubmit.GradedBy)
		})
	}
}

func TestEvaluationHandlerIgnoresGraderInPayload(t *testing.T) {
	svc := &mockEvaluationService{submitResult: dto.SubmitEvaluationResponse{Created: true}}
	app := newEvaluationApp(svc, 42, "admin")

	resp := doJSON(t, app, http.MethodPost, "/api/v1/evaluations", map[string]interface{}{
		"user_id":     1,
		"template_id": 2,
		"graded_by":   7,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, uint(42), *svc.lastSubmit.GradedBy)
}

func TestEvaluationHandlerErrorMapping(t *testing.T) {
	validationErr := validator.New().Struct(dto.SubmitEvaluationRequest{})
	require.Error(t, validationErr)

	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "field validation", err: fmt.Errorf("%w: %w", service.ErrValidation, validationErr), status: fiber.StatusBadRequest, message: "validation failed"},
		{name: "scoring validation", err: fmt.Errorf("%w: template 2: %w", service.ErrValidation, errors.New("no scorable questions")), status: fiber.StatusBadRequest, message: "template 2: no scorable questions"},
		{name: "user missing", err: service.ErrUserNotFound, status: fiber.StatusNotFound, message: "user not found"},
		{name: "template missing", err: service.ErrTemplateNotFound, status: fiber.StatusNotFound, message: "template not found"},
		{name: "conflict", err: fmt.Errorf("%w: user 1 template 2", service.ErrConflict), status: fiber.StatusConflict},
		{name: "persistence", err: fmt.Errorf("%w: disk full", service.ErrPersistence), status: fiber.StatusInternalServerError, message: "failed to record evaluation"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockEvaluationService{submitErr: tc.err}
			app := newEvaluationApp(svc, 42, "admin")

			resp := doJSON(t, app, http.MethodPost, "/api/v1/evaluations", map[string]interface{}{"user_id": 1, "template_id": 2})
			require.Equal(t, tc.status, resp.StatusCode)

			var body envelope
			decodeResponse(t, resp, &body)
			require.False(t, body.Success)
			if tc.message != "" {
				require.Equal(t, tc.message, body.Message)
			}
			if tc.name == "field validation" {
				require.Len(t, body.Details, 2)
				require.Equal(t, "user_id", body.Details[0].Field)
				require.Equal(t, "required", body.Details[0].Rule)
			}
		})
	}
}

func TestEvaluationHandlerRejectsMalformedInput(t *testing.T) {
	svc := &mockEvaluationService{}
	app := newEvaluationApp(svc, 42, "admin")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPatch, "/api/v1/evaluations/abc", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/evaluations/users/0", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	require.Zero(t, svc.calls)
}

func TestEvaluationHandlerRegrade(t *testing.T) {
	svc := &mockEvaluationService{submitResult: dto.SubmitEvaluationResponse{Revision: 3}}
	app := newEvaluationApp(svc, 42, "admin")

	resp := doJSON(t, app, http.MethodPatch, "/api/v1/evaluations/17", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(17), svc.regradeID)
	require.Nil(t, svc.lastRegrade.Deductions)
	require.Equal(t, uint(42), *svc.lastRegrade.GradedBy)

	resp = doJSON(t, app, http.MethodPatch, "/api/v1/evaluations/17", map[string]interface{}{"deductions": map[string]float64{}})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, svc.lastRegrade.Deductions)
	require.Empty(t, svc.lastRegrade.Deductions)

	svc.submitErr = service.ErrEvaluationNotFound
	resp = doJSON(t, app, http.MethodPatch, "/api/v1/evaluations/18", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestEvaluationHandlerWritesRequireAdmin(t *testing.T) {
	svc := &mockEvaluationService{}
	app := newEvaluationApp(svc, 5, "worker")

	resp := doJSON(t, app, http.MethodPost, "/api/v1/evaluations", map[string]interface{}{"user_id": 5, "template_id": 2})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPatch, "/api/v1/evaluations/1", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Zero(t, svc.calls)
}

func TestEvaluationHandlerReadsAreScopedToOwner(t *testing.T) {
	svc := &mockEvaluationService{history: []dto.EvaluationResponse{{ID: 1, UserID: 5}}}
	app := newEvaluationApp(svc, 5, "worker")

	resp := doJSON(t, app, http.MethodGet, "/api/v1/evaluations/users/5", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body envelope
	decodeResponse(t, resp, &body)
	var history []dto.EvaluationResponse
	require.NoError(t, json.Unmarshal(body.Data, &history))
	require.Len(t, history, 1)

	for _, path := range []string{
		"/api/v1/evaluations/users/6",
		"/api/v1/evaluations/users/6/latest",
		"/api/v1/evaluations/users/6/templates/2",
		"/api/v1/evaluations/users/6/templates/2/revisions",
	} {
		resp = doJSON(t, app, http.MethodGet, path, nil)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode, path)
	}
}

func TestEvaluationHandlerReadShapes(t *testing.T) {
	skill := dto.EvaluationResponse{ID: 3, CategoryType: models.CategorySkill}
	svc := &mockEvaluationService{latest: dto.LatestEvaluationsResponse{Skill: &skill}}
	app := newEvaluationApp(svc, 1, "admin")

	resp := doJSON(t, app, http.MethodGet, "/api/v1/evaluations/users/5/latest", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body envelope
	decodeResponse(t, resp, &body)
	require.JSONEq(t, `null`, string(mustField(t, body.Data, "knowledge")))
	require.NotEqual(t, "null", string(mustField(t, body.Data, "skill")))

	resp = doJSON(t, app, http.MethodGet, "/api/v1/evaluations/users/5/templates/9", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, "null", string(body.Data))

	resp = doJSON(t, app, http.MethodGet, "/api/v1/evaluations/users/5/templates/9/revisions", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeResponse(t, resp, &body)
	require.Equal(t, "[]", string(body.Data))

	svc.readErr = fmt.Errorf("%w: timeout", service.ErrPersistence)
	resp = doJSON(t, app, http.MethodGet, "/api/v1/evaluations/users/5", nil)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func mustField(t *testing.T, raw json.RawMessage, key string) json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	value, ok := fields[key]
	require.True(t, ok, "missing field %s", key)
	return value
}

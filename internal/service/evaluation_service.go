package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/certeval-api/internal/dto"
	"github.com/noah-isme/certeval-api/internal/lock"
	"github.com/noah-isme/certeval-api/internal/models"
	"github.com/noah-isme/certeval-api/internal/observability"
	"github.com/noah-isme/certeval-api/internal/repository"
	"github.com/noah-isme/certeval-api/internal/scoring"
)

const defaultLockWait = 5 * time.Second

// EvaluationService grades submissions and serves the stored results.
type EvaluationService interface {
	Submit(ctx context.Context, req dto.SubmitEvaluationRequest) (dto.SubmitEvaluationResponse, error)
	Regrade(ctx context.Context, evaluationID uint, req dto.RegradeEvaluationRequest) (dto.SubmitEvaluationResponse, error)
	Latest(ctx context.Context, userID uint) (dto.LatestEvaluationsResponse, error)
	History(ctx context.Context, userID uint) ([]dto.EvaluationResponse, error)
	ByTemplate(ctx context.Context, userID, templateID uint) (*dto.EvaluationResponse, error)
	Revisions(ctx context.Context, userID, templateID uint) ([]dto.EvaluationRevisionResponse, error)
}

// EvaluationServiceDeps lists the collaborators of the evaluation service.
// Locker defaults to an in-process KeyedMutex; Cache, Events and Activity are optional.
type EvaluationServiceDeps struct {
	Evaluations repository.EvaluationRepository
	Users       repository.UserRepository
	Templates   TemplateResolver
	Locker      lock.Locker
	Activity    ActivityRecorder
	Events      EventPublisher
	Cache       *redis.Client
	CacheTTL    time.Duration
	LockWait    time.Duration
	Policy      scoring.Policy
	Validator   *validator.Validate
}

type evaluationService struct {
	evaluations repository.EvaluationRepository
	users       repository.UserRepository
	templates   TemplateResolver
	locker      lock.Locker
	activity    ActivityRecorder
	events      EventPublisher
	cache       *redis.Client
	cacheTTL    time.Duration
	lockWait    time.Duration
	policy      scoring.Policy
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEvaluationService wires the scoring engine to the result store.
func NewEvaluationService(deps EvaluationServiceDeps, logger zerolog.Logger) EvaluationService {
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	lockWait := deps.LockWait
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	policy := deps.Policy
	if policy.PassThreshold <= 0 {
		policy = scoring.DefaultPolicy()
	}
	validate := deps.Validator
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &evaluationService{
		evaluations: deps.Evaluations,
		users:       deps.Users,
		templates:   deps.Templates,
		locker:      locker,
		activity:    deps.Activity,
		events:      deps.Events,
		cache:       deps.Cache,
		cacheTTL:    deps.CacheTTL,
		lockWait:    lockWait,
		policy:      policy,
		validator:   validate,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/certeval-api/internal/service/evaluation"),
		now:         time.Now,
	}
}

func (s *evaluationService) Submit(ctx context.Context, req dto.SubmitEvaluationRequest) (dto.SubmitEvaluationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmitEvaluationResponse{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	spanCtx, span := s.tracer.Start(ctx, "evaluations.submit", trace.WithAttributes(
		attribute.Int64("evaluation.user_id", int64(req.UserID)),
		attribute.Int64("evaluation.template_id", int64(req.TemplateID)),
	))
	defer span.End()

	response, err := s.submit(spanCtx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.SubmitEvaluationResponse{}, err
	}
	return response, nil
}

func (s *evaluationService) submit(ctx context.Context, req dto.SubmitEvaluationRequest) (dto.SubmitEvaluationResponse, error) {
	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmitEvaluationResponse{}, ErrUserNotFound
		}
		return dto.SubmitEvaluationResponse{}, fmt.Errorf("%w: load user: %w", ErrPersistence, err)
	}

	resolved, err := s.templates.Resolve(ctx, req.TemplateID)
	if err != nil {
		return dto.SubmitEvaluationResponse{}, err
	}
	if len(resolved.MissingQuestions) > 0 {
		s.reportMissingQuestions(ctx, req, resolved)
	}

	started := time.Now()
	evaluation, err := scoring.Compute(resolved.Questions, scoring.Deductions(req.Deductions), resolved.Category.Type(), resolved.CategoryName, s.policy)
	observability.ScoringDuration().Observe(time.Since(started).Seconds())
	if err != nil {
		observability.EvaluationSubmissions().WithLabelValues(string(resolved.Category.Type()), "rejected").Inc()
		return dto.SubmitEvaluationResponse{}, fmt.Errorf("%w: template %d: %w", ErrValidation, req.TemplateID, err)
	}

	now := s.now().UTC()
	record := models.EvaluationRecord{
		UserID:              user.ID,
		TemplateID:          resolved.Template.ID,
		DepartmentID:        user.DepartmentID,
		CategoryType:        resolved.Category.Type(),
		CategoryReferenceID: resolved.Category.RefID(),
		TotalScore:          evaluation.TotalScore,
		TotalMaxScore:       evaluation.TotalMaxScore,
		Percentage:          evaluation.Percentage,
		ResultStatus:        evaluation.Status,
		EvaluationData:      evaluation.Sections,
		Answers:             evaluation.Answers,
		Deductions:          dto.DeductionsToJSON(req.Deductions),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	result, err := s.write(ctx, record, req.GradedBy)
	if err != nil {
		observability.EvaluationSubmissions().WithLabelValues(string(record.CategoryType), "failed").Inc()
		return dto.SubmitEvaluationResponse{}, err
	}

	outcome := "regraded"
	if result.Created {
		outcome = "created"
	}
	observability.EvaluationSubmissions().WithLabelValues(string(record.CategoryType), outcome).Inc()

	s.afterCommit(ctx, result, req.GradedBy)

	s.logger.Info().
		Uint("user_id", record.UserID).
		Uint("template_id", record.TemplateID).
		Uint("evaluation_id", result.Record.ID).
		Int("revision", result.Revision).
		Float64("percentage", record.Percentage).
		Str("status", string(record.ResultStatus)).
		Msg("evaluation recorded")

	excluded := resolved.MissingQuestions
	if excluded == nil {
		excluded = []uint{}
	}

	return dto.SubmitEvaluationResponse{
		Evaluation:        dto.NewEvaluationResponse(result.Record),
		Created:           result.Created,
		Revision:          result.Revision,
		ExcludedQuestions: excluded,
	}, nil
}

// write holds the per-pair lock across the store transaction so concurrent
// submissions for the same user and template apply one after the other.
func (s *evaluationService) write(ctx context.Context, record models.EvaluationRecord, gradedBy *uint) (repository.UpsertResult, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	release, err := s.locker.Acquire(lockCtx, lockKey(record.UserID, record.TemplateID))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return repository.UpsertResult{}, fmt.Errorf("%w: user %d template %d: %w", ErrConflict, record.UserID, record.TemplateID, err)
		}
		return repository.UpsertResult{}, fmt.Errorf("%w: acquire lock: %w", ErrPersistence, err)
	}
	defer release()

	result, err := s.evaluations.Upsert(ctx, record, gradedBy)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.UpsertResult{}, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return repository.UpsertResult{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return result, nil
}

func (s *evaluationService) afterCommit(ctx context.Context, result repository.UpsertResult, gradedBy *uint) {
	record := result.Record
	s.invalidate(ctx, record.UserID)

	if s.events != nil {
		event := EvaluationRecordedEvent{
			EvaluationID: record.ID,
			UserID:       record.UserID,
			TemplateID:   record.TemplateID,
			CategoryType: record.CategoryType,
			Percentage:   record.Percentage,
			ResultStatus: record.ResultStatus,
			Created:      result.Created,
			Revision:     result.Revision,
			RecordedAt:   record.UpdatedAt,
		}
		if err := s.events.PublishRecorded(ctx, event); err != nil {
			s.logger.Warn().Err(err).Uint("evaluation_id", record.ID).Msg("failed to publish evaluation event")
		}
	}

	if s.activity != nil {
		entityID := record.ID
		if _, err := s.activity.Record(ctx, ActivityEntry{
			ActorID:    actorID(gradedBy),
			Action:     ActionEvaluationRecorded,
			Severity:   models.ActivitySeverityInfo,
			EntityType: "evaluation",
			EntityID:   &entityID,
			Metadata: map[string]interface{}{
				"user_id":       record.UserID,
				"template_id":   record.TemplateID,
				"percentage":    record.Percentage,
				"result_status": string(record.ResultStatus),
				"revision":      result.Revision,
				"created":       result.Created,
			},
		}); err != nil {
			s.logger.Warn().Err(err).Uint("evaluation_id", record.ID).Msg("failed to record evaluation activity")
		}
	}
}

func (s *evaluationService) reportMissingQuestions(ctx context.Context, req dto.SubmitEvaluationRequest, resolved ResolvedTemplate) {
	s.logger.Warn().
		Uint("template_id", resolved.Template.ID).
		Uints("question_ids", resolved.MissingQuestions).
		Msg("template references missing or inactive questions; excluded from scoring")
	observability.IntegrityWarnings().WithLabelValues("missing_question").Add(float64(len(resolved.MissingQuestions)))

	if s.activity == nil {
		return
	}
	templateID := resolved.Template.ID
	if _, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actorID(req.GradedBy),
		Action:     ActionIntegrityWarning,
		Severity:   models.ActivitySeverityWarning,
		EntityType: "template",
		EntityID:   &templateID,
		Metadata: map[string]interface{}{
			"user_id":      req.UserID,
			"question_ids": resolved.MissingQuestions,
		},
	}); err != nil {
		s.logger.Warn().Err(err).Uint("template_id", templateID).Msg("failed to record integrity warning")
	}
}

func (s *evaluationService) Regrade(ctx context.Context, evaluationID uint, req dto.RegradeEvaluationRequest) (dto.SubmitEvaluationResponse, error) {
	if evaluationID == 0 {
		return dto.SubmitEvaluationResponse{}, fmt.Errorf("%w: evaluation id is required", ErrValidation)
	}

	existing, err := s.evaluations.GetByID(ctx, evaluationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmitEvaluationResponse{}, ErrEvaluationNotFound
		}
		return dto.SubmitEvaluationResponse{}, fmt.Errorf("%w: load evaluation: %w", ErrPersistence, err)
	}

	deductions := req.Deductions
	if deductions == nil {
		// No new marking: rescore the stored deductions against the current template.
		deductions = dto.DeductionsFromJSON(existing.Deductions)
	}

	return s.Submit(ctx, dto.SubmitEvaluationRequest{
		UserID:     existing.UserID,
		TemplateID: existing.TemplateID,
		Deductions: deductions,
		GradedBy:   req.GradedBy,
	})
}

func (s *evaluationService) Latest(ctx context.Context, userID uint) (dto.LatestEvaluationsResponse, error) {
	cacheKey := latestCacheKey(userID)

	var response dto.LatestEvaluationsResponse
	if s.readCache(ctx, cacheKey, &response) {
		return response, nil
	}
	generation, cacheable := s.cacheGeneration(ctx, userID)

	for _, category := range []models.CategoryType{models.CategoryKnowledge, models.CategorySkill} {
		record, err := s.evaluations.LatestByCategory(ctx, userID, category)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return dto.LatestEvaluationsResponse{}, fmt.Errorf("%w: latest %s: %w", ErrPersistence, category, err)
		}

		item := dto.NewEvaluationResponse(record)
		switch category {
		case models.CategoryKnowledge:
			response.Knowledge = &item
		case models.CategorySkill:
			response.Skill = &item
		}
	}

	if cacheable {
		s.writeCache(ctx, userID, generation, cacheKey, response)
	}
	return response, nil
}

func (s *evaluationService) History(ctx context.Context, userID uint) ([]dto.EvaluationResponse, error) {
	cacheKey := historyCacheKey(userID)

	var response []dto.EvaluationResponse
	if s.readCache(ctx, cacheKey, &response) {
		return response, nil
	}
	generation, cacheable := s.cacheGeneration(ctx, userID)

	records, err := s.evaluations.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: history: %w", ErrPersistence, err)
	}

	response = dto.NewEvaluationResponseSlice(records)
	if cacheable {
		s.writeCache(ctx, userID, generation, cacheKey, response)
	}
	return response, nil
}

func (s *evaluationService) ByTemplate(ctx context.Context, userID, templateID uint) (*dto.EvaluationResponse, error) {
	record, err := s.evaluations.FindByUserAndTemplate(ctx, userID, templateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: by template: %w", ErrPersistence, err)
	}

	response := dto.NewEvaluationResponse(record)
	return &response, nil
}

func (s *evaluationService) Revisions(ctx context.Context, userID, templateID uint) ([]dto.EvaluationRevisionResponse, error) {
	revisions, err := s.evaluations.ListRevisions(ctx, userID, templateID)
	if err != nil {
		return nil, fmt.Errorf("%w: revisions: %w", ErrPersistence, err)
	}

	response := make([]dto.EvaluationRevisionResponse, 0, len(revisions))
	for _, revision := range revisions {
		response = append(response, dto.NewEvaluationRevisionResponse(revision))
	}
	return response, nil
}

func (s *evaluationService) readCache(ctx context.Context, key string, target interface{}) bool {
	if s.cache == nil {
		return false
	}

	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to read evaluation cache")
		}
		return false
	}
	if err := json.Unmarshal([]byte(cached), target); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding malformed evaluation cache entry")
		return false
	}
	s.logger.Debug().Str("key", key).Msg("evaluation cache hit")
	return true
}

var errStaleCacheEntry = errors.New("evaluation cache generation changed")

// cacheGeneration reads the user's cache generation before the database query.
// Writes bump it, so a read that raced a write can tell its rows are stale.
func (s *evaluationService) cacheGeneration(ctx context.Context, userID uint) (string, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return "", false
	}
	generation, err := s.cache.Get(ctx, generationCacheKey(userID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "0", true
	case err != nil:
		s.logger.Warn().Err(err).Uint("user_id", userID).Msg("failed to read evaluation cache generation")
		return "", false
	}
	return generation, true
}

// writeCache stores value only while the generation still matches the one read
// before the query. WATCH aborts the write when an invalidation lands in between.
func (s *evaluationService) writeCache(ctx context.Context, userID uint, generation, key string, value interface{}) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}

	genKey := generationCacheKey(userID)
	err = s.cache.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if errors.Is(err, redis.Nil) {
			current = "0"
		} else if err != nil {
			return err
		}
		if current != generation {
			return errStaleCacheEntry
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.cacheTTL)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleCacheEntry), errors.Is(err, redis.TxFailedErr):
		s.logger.Debug().Str("key", key).Msg("skipping evaluation cache write after concurrent update")
	default:
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to store evaluation cache")
	}
}

// invalidate bumps the generation and drops cached reads in one transaction.
func (s *evaluationService) invalidate(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	_, err := s.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationCacheKey(userID))
		pipe.Del(ctx, latestCacheKey(userID), historyCacheKey(userID))
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("user_id", userID).Msg("failed to invalidate evaluation cache")
	}
}

func latestCacheKey(userID uint) string {
	return fmt.Sprintf("evaluations:latest:user:%d", userID)
}

func historyCacheKey(userID uint) string {
	return fmt.Sprintf("evaluations:history:user:%d", userID)
}

func generationCacheKey(userID uint) string {
	return fmt.Sprintf("evaluations:generation:user:%d", userID)
}

func lockKey(userID, templateID uint) string {
	return fmt.Sprintf("evaluation:%d:%d", userID, templateID)
}

func actorID(gradedBy *uint) uint {
	if gradedBy == nil {
		return 0
	}
	return *gradedBy
}
